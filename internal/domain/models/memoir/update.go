package memoir

import "time"

// UpdateMode selects which sections an update touches and how content is integrated.
type UpdateMode string

const (
	ModeGenerate   UpdateMode = "generate"
	ModeEvolve     UpdateMode = "evolve"
	ModeRegenerate UpdateMode = "regenerate"
	ModeRefresh    UpdateMode = "refresh"
	ModeAppend     UpdateMode = "append"
)

// UpdateModes lists every mode accepted by the engine.
var UpdateModes = []UpdateMode{ModeGenerate, ModeEvolve, ModeRegenerate, ModeRefresh, ModeAppend}

// IsValid reports whether m is a known mode.
func (m UpdateMode) IsValid() bool {
	for _, known := range UpdateModes {
		if m == known {
			return true
		}
	}
	return false
}

// SectionState is the outcome of one section within an update.
type SectionState string

const (
	SectionUnchanged     SectionState = "unchanged"
	SectionUpdated       SectionState = "updated"
	SectionSkippedLocked SectionState = "skipped_locked"
	SectionFailed        SectionState = "failed"
)

// SectionOutcome reports what happened to one section.
type SectionOutcome struct {
	SectionID      string       `json:"section_id"`
	Title          string       `json:"title"`
	State          SectionState `json:"state"`
	VersionID      string       `json:"version_id,omitempty"`
	SequenceNumber int          `json:"sequence_number,omitempty"`
	NewContentIDs  []string     `json:"new_content_ids,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// UpdateCounts tallies outcomes by state.
type UpdateCounts struct {
	Updated       int `json:"updated"`
	Unchanged     int `json:"unchanged"`
	SkippedLocked int `json:"skipped_locked"`
	Failed        int `json:"failed"`
}

// UpdateResult is the per-section report of one update call.
type UpdateResult struct {
	ProjectionID    string           `json:"projection_id"`
	Mode            UpdateMode       `json:"mode"`
	Version         int              `json:"version"`
	VersionBumped   bool             `json:"version_bumped"`
	ConfigVersion   string           `json:"config_version,omitempty"`
	NarrativeSynced bool             `json:"narrative_synced"`
	Sections        []SectionOutcome `json:"sections"`
	Counts          UpdateCounts     `json:"counts"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
}

// Record appends an outcome and updates the tallies.
func (r *UpdateResult) Record(outcome SectionOutcome) {
	r.Sections = append(r.Sections, outcome)
	switch outcome.State {
	case SectionUpdated:
		r.Counts.Updated++
	case SectionUnchanged:
		r.Counts.Unchanged++
	case SectionSkippedLocked:
		r.Counts.SkippedLocked++
	case SectionFailed:
		r.Counts.Failed++
	}
}

// ModeImpact describes which sections a mode would touch right now.
type ModeImpact struct {
	Mode            UpdateMode `json:"mode"`
	Description     string     `json:"description"`
	AffectsSections []string   `json:"affects_sections"`
	Available       bool       `json:"available"`
}

// UpdateOptions summarises a projection's update state for a client choosing a mode.
type UpdateOptions struct {
	ProjectionID        string       `json:"projection_id"`
	Version             int          `json:"version"`
	HasNewContent       bool         `json:"has_new_content"`
	NewContentCount     int          `json:"new_content_count"`
	StaleSections       int          `json:"stale_sections"`
	LockedSections      int          `json:"locked_sections"`
	RegenerableSections int          `json:"regenerable_sections"`
	NarrativeStale      bool         `json:"narrative_stale"`
	Modes               []ModeImpact `json:"modes"`
}

// RunStatus is the lifecycle state of an asynchronous update.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// UpdateRun tracks an update executed in the background.
type UpdateRun struct {
	ID           string        `json:"id"`
	ProjectionID string        `json:"projection_id"`
	Mode         UpdateMode    `json:"mode"`
	Status       RunStatus     `json:"status"`
	Result       *UpdateResult `json:"result,omitempty"`
	Error        string        `json:"error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
}
