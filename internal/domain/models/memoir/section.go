package memoir

import "time"

// LockState of a section. Locked sections are never touched by automated updates.
type LockState string

const (
	LockStateUnlocked LockState = "unlocked"
	LockStateLocked   LockState = "locked"
)

// GeneratedBy records what produced a section version.
type GeneratedBy string

const (
	GeneratedByGenerate   GeneratedBy = "ai_generate"
	GeneratedByEvolve     GeneratedBy = "ai_evolve"
	GeneratedByRegenerate GeneratedBy = "ai_regenerate"
	GeneratedByManualEdit GeneratedBy = "manual_edit"
)

// Section is one titled, ordered, lockable part of a projection.
// Text and WordCount mirror the current version.
type Section struct {
	ID               string     `json:"id" db:"id"`
	ProjectionID     string     `json:"projection_id" db:"projection_id"`
	Key              string     `json:"key,omitempty" db:"template_key"` // section template id from the product definition
	Title            string     `json:"title" db:"title"`
	Order            int        `json:"order" db:"section_order"`
	LockState        LockState  `json:"lock_state" db:"lock_state"`
	LockedAt         *time.Time `json:"locked_at,omitempty" db:"locked_at"`
	LockedBy         *string    `json:"locked_by,omitempty" db:"locked_by"`
	LockReason       *string    `json:"lock_reason,omitempty" db:"lock_reason"`
	CurrentVersionID *string    `json:"current_version_id,omitempty" db:"current_version_id"`
	SourceContentIDs []string   `json:"source_content_ids" db:"source_content_ids"`
	Tags             []string   `json:"tags" db:"tags"`
	QuestionIDs      []string   `json:"question_ids" db:"question_ids"`
	Text             string     `json:"text" db:"text"`
	WordCount        int        `json:"word_count" db:"word_count"`
	LastUpdatedAt    *time.Time `json:"last_updated_at,omitempty" db:"last_updated_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

// IsLocked reports whether automated updates must skip the section.
func (s *Section) IsLocked() bool {
	return s.LockState == LockStateLocked
}

// HasSource reports whether contentID already informs the section.
func (s *Section) HasSource(contentID string) bool {
	return containsString(s.SourceContentIDs, contentID)
}

// HasQuestion reports whether the section is linked to questionID.
func (s *Section) HasQuestion(questionID string) bool {
	return containsString(s.QuestionIDs, questionID)
}

// SectionVersion is one immutable entry of a section's history.
// SequenceNumber starts at 1 and is contiguous per section.
type SectionVersion struct {
	ID               string      `json:"id" db:"id"`
	SectionID        string      `json:"section_id" db:"section_id"`
	SequenceNumber   int         `json:"sequence_number" db:"sequence_number"`
	Text             string      `json:"text" db:"text"`
	SourceContentIDs []string    `json:"source_content_ids" db:"source_content_ids"`
	GeneratedBy      GeneratedBy `json:"generated_by" db:"generated_by"`
	CreatedBy        *string     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
}
