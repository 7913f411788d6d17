package products

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"memoir/internal/domain/models/memoir"
)

// File is the top-level shape of a product YAML file
type File struct {
	Products []Product `yaml:"products"`
}

// Product groups projection definitions and a question bank under one
// versioned id. Definitions are read-only once loaded.
type Product struct {
	ID          string                 `yaml:"id" json:"id"`
	Version     string                 `yaml:"version" json:"version"`
	Name        string                 `yaml:"name" json:"name"`
	Projections []ProjectionDefinition `yaml:"projections" json:"projections"`
	Questions   []Question             `yaml:"questions" json:"questions"`
}

// ProjectionDefinition is a projection template
type ProjectionDefinition struct {
	ID                string            `yaml:"id" json:"id"`
	Name              string            `yaml:"name" json:"name"`
	Style             string            `yaml:"style" json:"style"`
	DefaultUpdateMode string            `yaml:"default_update_mode" json:"default_update_mode"`
	Length            string            `yaml:"length" json:"length"`
	VoiceGuidance     string            `yaml:"voice_guidance" json:"voice_guidance,omitempty"`
	Default           bool              `yaml:"default" json:"default,omitempty"`
	AutoUpdate        bool              `yaml:"auto_update" json:"auto_update,omitempty"`
	ContributorFilter []string          `yaml:"contributor_filter" json:"contributor_filter,omitempty"`
	TagFilter         []string          `yaml:"tag_filter" json:"tag_filter,omitempty"`
	ExcludeTags       []string          `yaml:"exclude_tags" json:"exclude_tags,omitempty"`
	Sections          []SectionTemplate `yaml:"sections" json:"sections,omitempty"`
}

// SectionTemplate is one section of a projection definition
type SectionTemplate struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Order       int      `yaml:"order" json:"order"`
	Tags        []string `yaml:"tags" json:"tags,omitempty"`
	QuestionIDs []string `yaml:"question_ids" json:"question_ids,omitempty"`
}

// Question is an entry of a product's question bank
type Question struct {
	ID   string   `yaml:"id" json:"id"`
	Text string   `yaml:"text" json:"text"`
	Tags []string `yaml:"tags" json:"tags,omitempty"`
}

// Resolved is a definition pinned to the product version it came from
type Resolved struct {
	Product    *Product
	Definition *ProjectionDefinition
}

// ConfigVersion identifies the configuration an update ran against
func (r *Resolved) ConfigVersion() string {
	return fmt.Sprintf("%s@%s/%s", r.Product.ID, r.Product.Version, r.Definition.ID)
}

// Template returns the section template with key, or nil
func (r *Resolved) Template(key string) *SectionTemplate {
	for i := range r.Definition.Sections {
		if r.Definition.Sections[i].ID == key {
			return &r.Definition.Sections[i]
		}
	}
	return nil
}

// Validate implements validation.Validatable
func (p Product) Validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.Version, validation.Required),
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Projections, validation.Required),
	); err != nil {
		return err
	}

	if err := uniqueIDs("projection", len(p.Projections), func(i int) string { return p.Projections[i].ID }); err != nil {
		return err
	}
	if err := uniqueIDs("question", len(p.Questions), func(i int) string { return p.Questions[i].ID }); err != nil {
		return err
	}

	known := make(map[string]bool, len(p.Questions))
	for _, q := range p.Questions {
		known[q.ID] = true
	}
	for _, def := range p.Projections {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("projection %s: %w", def.ID, err)
		}
		for _, s := range def.Sections {
			for _, qid := range s.QuestionIDs {
				if !known[qid] {
					return fmt.Errorf("projection %s section %s: unknown question %q", def.ID, s.ID, qid)
				}
			}
		}
	}
	return nil
}

// Validate implements validation.Validatable
func (d ProjectionDefinition) Validate() error {
	if err := validation.ValidateStruct(&d,
		validation.Field(&d.ID, validation.Required),
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.Style, validation.Required, validation.In(stringValues(memoir.Styles)...)),
		validation.Field(&d.DefaultUpdateMode, validation.In(stringValues(memoir.UpdateModes)...)),
		validation.Field(&d.Length, validation.In(stringValues(memoir.Lengths)...)),
	); err != nil {
		return err
	}
	for _, s := range d.Sections {
		if err := validation.ValidateStruct(&s,
			validation.Field(&s.ID, validation.Required),
			validation.Field(&s.Title, validation.Required),
		); err != nil {
			return fmt.Errorf("section %q: %w", s.ID, err)
		}
	}
	return uniqueIDs("section", len(d.Sections), func(i int) string { return d.Sections[i].ID })
}

func uniqueIDs(kind string, n int, id func(int) string) error {
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		if seen[id(i)] {
			return fmt.Errorf("duplicate %s id %q", kind, id(i))
		}
		seen[id(i)] = true
	}
	return nil
}

func stringValues[T ~string](values []T) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
