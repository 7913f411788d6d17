package memoir

import (
	"fmt"
	"strings"
	"time"
)

// Style selects how sections of a projection are derived.
type Style string

const (
	StyleThematic      Style = "thematic"
	StyleChronological Style = "chronological"
	StyleByContributor Style = "by_contributor"
	StyleQuestions     Style = "questions"
	StyleFreeform      Style = "freeform"
)

// Styles lists every projection style.
var Styles = []Style{StyleThematic, StyleChronological, StyleByContributor, StyleQuestions, StyleFreeform}

// Length is the target size of generated sections.
type Length string

const (
	LengthSummary       Length = "summary"
	LengthStandard      Length = "standard"
	LengthComprehensive Length = "comprehensive"
)

// Lengths lists every accepted length.
var Lengths = []Length{LengthSummary, LengthStandard, LengthComprehensive}

// ContributorTagPrefix marks the synthetic tag binding a by_contributor section
// to its contributor.
const ContributorTagPrefix = "contributor:"

// Projection is a document computed from a project's content pool.
// Version increases by exactly one per update call that changed anything.
type Projection struct {
	ID                string     `json:"id" db:"id"`
	ProjectID         string     `json:"project_id" db:"project_id"`
	Name              string     `json:"name" db:"name"`
	ProductID         string     `json:"product_id,omitempty" db:"product_id"`
	DefinitionID      string     `json:"definition_id,omitempty" db:"definition_id"`
	Style             Style      `json:"style" db:"style"`
	Length            Length     `json:"length" db:"length"`
	VoiceGuidance     string     `json:"voice_guidance,omitempty" db:"voice_guidance"`
	DefaultUpdateMode UpdateMode `json:"default_update_mode" db:"default_update_mode"`
	ContributorFilter []string   `json:"contributor_filter,omitempty" db:"contributor_filter"`
	TagFilter         []string   `json:"tag_filter,omitempty" db:"tag_filter"`
	ExcludeTags       []string   `json:"exclude_tags,omitempty" db:"exclude_tags"`
	AutoUpdate        bool       `json:"auto_update_on_content" db:"auto_update_on_content"`
	Version           int        `json:"version" db:"version"`
	WordCount         int        `json:"word_count" db:"word_count"`
	LastUpdateMode    *string    `json:"last_update_mode,omitempty" db:"last_update_mode"`
	Sections          []Section  `json:"sections"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Section returns the section with id, or nil.
func (p *Projection) Section(id string) *Section {
	for i := range p.Sections {
		if p.Sections[i].ID == id {
			return &p.Sections[i]
		}
	}
	return nil
}

// TotalWordCount sums section word counts.
func (p *Projection) TotalWordCount() int {
	total := 0
	for _, s := range p.Sections {
		total += s.WordCount
	}
	return total
}

// FullText renders the projection as markdown, sections in order,
// skipping sections that have never been written.
func (p *Projection) FullText() string {
	parts := make([]string, 0, len(p.Sections))
	for _, s := range p.Sections {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", s.Title, s.Text))
	}
	return strings.Join(parts, "\n\n")
}
