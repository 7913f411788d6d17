package memoir

import (
	"sort"
	"time"
)

const (
	// ThemeStrengthStep is added each time a theme is found in a new item.
	ThemeStrengthStep = 0.1
	// MaxThemeStrength caps Theme.Strength.
	MaxThemeStrength = 1.0
)

// Theme is a recurring subject across the pool. Name is the display form of
// the first discovery; the map key in NarrativeContext is the case-folded form.
type Theme struct {
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Strength         float64  `json:"strength"`
	SourceContentIDs []string `json:"source_content_ids"`
}

// Fact is a keyed statement extracted from content (a birthplace, an answer).
type Fact struct {
	Key              string   `json:"key"`
	Value            string   `json:"value"`
	SourceContentIDs []string `json:"source_content_ids"`
}

// TimelineEvent is a dated moment mentioned by a content item.
type TimelineEvent struct {
	Date      string `json:"date"`
	Label     string `json:"label"`
	ContentID string `json:"content_id"`
}

// NarrativeContext is the per-project digest of the pool, advanced
// incrementally by a high-water mark over the pool sequence.
type NarrativeContext struct {
	ProjectID              string            `json:"project_id" db:"project_id"`
	Themes                 map[string]*Theme `json:"themes" db:"themes"`
	Facts                  map[string]*Fact  `json:"facts" db:"facts"`
	Timeline               []TimelineEvent   `json:"timeline" db:"timeline"`
	Summary                string            `json:"summary,omitempty" db:"summary"`
	EmotionalTone          string            `json:"emotional_tone,omitempty" db:"emotional_tone"`
	LastProcessedSequence  int64             `json:"last_processed_sequence" db:"last_processed_sequence"`
	LastProcessedContentID *string           `json:"last_processed_content_id,omitempty" db:"last_processed_content_id"`
	PendingContentIDs      []string          `json:"pending_content_ids" db:"pending_content_ids"`
	FailedAttempts         map[string]int    `json:"failed_attempts,omitempty" db:"failed_attempts"`
	SkippedContentIDs      []string          `json:"skipped_content_ids,omitempty" db:"skipped_content_ids"`
	UpdatedAt              time.Time         `json:"updated_at" db:"updated_at"`
}

// NewNarrativeContext returns an empty context for a project.
func NewNarrativeContext(projectID string) *NarrativeContext {
	return &NarrativeContext{
		ProjectID:         projectID,
		Themes:            make(map[string]*Theme),
		Facts:             make(map[string]*Fact),
		Timeline:          []TimelineEvent{},
		PendingContentIDs: []string{},
		FailedAttempts:    make(map[string]int),
	}
}

// AddTheme records that contentID exhibits the theme under key. Strength only
// grows when contentID is new to the theme, so re-processing is a no-op.
func (n *NarrativeContext) AddTheme(key, name, description, contentID string) {
	theme, ok := n.Themes[key]
	if !ok {
		n.Themes[key] = &Theme{
			Name:             name,
			Description:      description,
			Strength:         ThemeStrengthStep,
			SourceContentIDs: []string{contentID},
		}
		return
	}
	if theme.Description == "" {
		theme.Description = description
	}
	if containsString(theme.SourceContentIDs, contentID) {
		return
	}
	theme.SourceContentIDs = append(theme.SourceContentIDs, contentID)
	theme.Strength = min(theme.Strength+ThemeStrengthStep, MaxThemeStrength)
}

// AddFact sets a fact value and records its source.
func (n *NarrativeContext) AddFact(key, value, contentID string) {
	fact, ok := n.Facts[key]
	if !ok {
		n.Facts[key] = &Fact{Key: key, Value: value, SourceContentIDs: []string{contentID}}
		return
	}
	fact.Value = value
	if !containsString(fact.SourceContentIDs, contentID) {
		fact.SourceContentIDs = append(fact.SourceContentIDs, contentID)
	}
}

// AddEvent appends a timeline event unless the same one is already present.
func (n *NarrativeContext) AddEvent(event TimelineEvent) {
	for _, existing := range n.Timeline {
		if existing == event {
			return
		}
	}
	n.Timeline = append(n.Timeline, event)
	sort.SliceStable(n.Timeline, func(i, j int) bool {
		if n.Timeline[i].Date != n.Timeline[j].Date {
			return n.Timeline[i].Date < n.Timeline[j].Date
		}
		return n.Timeline[i].Label < n.Timeline[j].Label
	})
}

// MarkPending records a failed item for retry on the next sync.
func (n *NarrativeContext) MarkPending(contentID string) {
	if !containsString(n.PendingContentIDs, contentID) {
		n.PendingContentIDs = append(n.PendingContentIDs, contentID)
	}
}

// ClearPending removes an item from the retry list.
func (n *NarrativeContext) ClearPending(contentID string) {
	kept := n.PendingContentIDs[:0]
	for _, id := range n.PendingContentIDs {
		if id != contentID {
			kept = append(kept, id)
		}
	}
	n.PendingContentIDs = kept
	delete(n.FailedAttempts, contentID)
}

// ThemesByStrength returns themes strongest first, ties by name.
func (n *NarrativeContext) ThemesByStrength() []*Theme {
	themes := make([]*Theme, 0, len(n.Themes))
	for _, t := range n.Themes {
		themes = append(themes, t)
	}
	sort.Slice(themes, func(i, j int) bool {
		if themes[i].Strength != themes[j].Strength {
			return themes[i].Strength > themes[j].Strength
		}
		return themes[i].Name < themes[j].Name
	})
	return themes
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
