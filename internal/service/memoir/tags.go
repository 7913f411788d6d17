package memoir

import (
	"strings"

	"golang.org/x/text/cases"

	models "memoir/internal/domain/models/memoir"
)

// NormalizeTag trims and case-folds a tag or theme name so that "Childhood",
// "childhood" and "CHILDHOOD " compare equal.
func NormalizeTag(tag string) string {
	return cases.Fold().String(strings.TrimSpace(tag))
}

// NormalizeTags normalizes, drops empties and de-duplicates, keeping first-seen order
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// FilterPool keeps the items a projection admits. An item passes when its
// contributor is in the contributor filter, it carries at least one tag of
// the tag filter and none of the excluded tags. Empty filters admit all.
func FilterPool(projection *models.Projection, items []models.ContentItem) []models.ContentItem {
	if len(projection.ContributorFilter) == 0 && len(projection.TagFilter) == 0 && len(projection.ExcludeTags) == 0 {
		return items
	}

	contributors := toSet(projection.ContributorFilter)
	include := toSet(NormalizeTags(projection.TagFilter))
	exclude := toSet(NormalizeTags(projection.ExcludeTags))

	kept := make([]models.ContentItem, 0, len(items))
	for _, item := range items {
		if len(contributors) > 0 && !contributors[item.ContributorID] {
			continue
		}
		if len(include) > 0 && !anyIn(item.Tags, include) {
			continue
		}
		if anyIn(item.Tags, exclude) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func anyIn(tags []string, set map[string]bool) bool {
	for _, t := range tags {
		if set[t] {
			return true
		}
	}
	return false
}
