package memoir

import (
	"sort"
	"strings"
	"time"

	models "memoir/internal/domain/models/memoir"
)

// Relevance weights. A section with tags and questions reaches 1.0 only for a
// fully tag-matching, brand-new answer to one of its questions.
const (
	WeightTagOverlap = 0.5
	WeightRecency    = 0.2
	WeightQuestion   = 0.3

	DefaultRelevanceThreshold = 0.3
	DefaultRecencyWindow      = 180 * 24 * time.Hour
)

// ScoredItem is a content item with its relevance to one section
type ScoredItem struct {
	Item  models.ContentItem
	Score float64
}

// Scorer ranks content items against sections. It is stateless apart from
// its parameters and clock.
type Scorer struct {
	threshold     float64
	recencyWindow time.Duration
	clock         Clock
}

// NewScorer creates a scorer. Zero values select the defaults.
func NewScorer(threshold float64, recencyWindow time.Duration, clock Clock) *Scorer {
	if threshold <= 0 {
		threshold = DefaultRelevanceThreshold
	}
	if recencyWindow <= 0 {
		recencyWindow = DefaultRecencyWindow
	}
	if clock == nil {
		clock = time.Now
	}
	return &Scorer{threshold: threshold, recencyWindow: recencyWindow, clock: clock}
}

// Threshold returns the minimum score for an item to be relevant
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Score computes 0.5·tag_overlap + 0.2·recency + 0.3·question_link.
// Sections with neither tags nor questions accept everything with score 1.
func (s *Scorer) Score(section *models.Section, item *models.ContentItem, now time.Time) float64 {
	if len(section.Tags) == 0 && len(section.QuestionIDs) == 0 {
		return 1
	}

	score := WeightTagOverlap*tagOverlap(section, item) + WeightRecency*s.recency(item, now)
	if item.QuestionID != nil && section.HasQuestion(*item.QuestionID) {
		score += WeightQuestion
	}
	return score
}

// Rank scores every item and sorts by score descending, ties broken by
// creation time then id so the order is total.
func (s *Scorer) Rank(section *models.Section, items []models.ContentItem) []ScoredItem {
	now := s.clock()
	scored := make([]ScoredItem, len(items))
	for i := range items {
		scored[i] = ScoredItem{Item: items[i], Score: s.Score(section, &items[i], now)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Item.CreatedAt.Equal(b.Item.CreatedAt) {
			return a.Item.CreatedAt.Before(b.Item.CreatedAt)
		}
		return a.Item.ID < b.Item.ID
	})
	return scored
}

// Relevant returns the ranked items scoring at least the threshold
func (s *Scorer) Relevant(section *models.Section, items []models.ContentItem) []ScoredItem {
	ranked := s.Rank(section, items)
	cut := len(ranked)
	for i, si := range ranked {
		if si.Score < s.threshold {
			cut = i
			break
		}
	}
	return ranked[:cut]
}

// IsStale reports whether relevant content newer than the section's last
// update has not been incorporated yet.
func (s *Scorer) IsStale(section *models.Section, items []models.ContentItem) bool {
	for _, si := range s.Relevant(section, items) {
		if section.HasSource(si.Item.ID) {
			continue
		}
		if section.LastUpdatedAt == nil || si.Item.CreatedAt.After(*section.LastUpdatedAt) {
			return true
		}
	}
	return false
}

// NewlyRelevant keeps scored items the section does not already draw from
func NewlyRelevant(section *models.Section, scored []ScoredItem) []ScoredItem {
	fresh := make([]ScoredItem, 0, len(scored))
	for _, si := range scored {
		if !section.HasSource(si.Item.ID) {
			fresh = append(fresh, si)
		}
	}
	return fresh
}

func (s *Scorer) recency(item *models.ContentItem, now time.Time) float64 {
	age := now.Sub(item.CreatedAt)
	if age <= 0 {
		return 1
	}
	r := 1 - float64(age)/float64(s.recencyWindow)
	return max(r, 0)
}

// tagOverlap is |section tags ∩ item tags| / |section tags|
func tagOverlap(section *models.Section, item *models.ContentItem) float64 {
	if len(section.Tags) == 0 {
		return 0
	}
	matched := 0
	for _, tag := range section.Tags {
		if itemMatchesTag(item, tag) {
			matched++
		}
	}
	return float64(matched) / float64(len(section.Tags))
}

// itemMatchesTag treats contributor:<id> tags as a match on the item's contributor
func itemMatchesTag(item *models.ContentItem, tag string) bool {
	if contributor, ok := strings.CutPrefix(tag, models.ContributorTagPrefix); ok {
		return item.ContributorID == contributor
	}
	return item.HasTag(tag)
}

func itemIDs(scored []ScoredItem) []string {
	ids := make([]string, len(scored))
	for i, si := range scored {
		ids[i] = si.Item.ID
	}
	return ids
}

func itemsOf(scored []ScoredItem) []models.ContentItem {
	items := make([]models.ContentItem, len(scored))
	for i, si := range scored {
		items[i] = si.Item
	}
	return items
}
