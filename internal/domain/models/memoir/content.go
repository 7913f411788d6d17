package memoir

import (
	"fmt"
	"strings"
	"time"
)

// ContentType is the kind of raw material a contributor submitted.
type ContentType string

const (
	ContentTypeText         ContentType = "text"
	ContentTypeStructuredQA ContentType = "structured_qa"
	ContentTypeImage        ContentType = "image"
	ContentTypeAudio        ContentType = "audio"
)

// ContentTypes lists every accepted content type.
var ContentTypes = []ContentType{
	ContentTypeText,
	ContentTypeStructuredQA,
	ContentTypeImage,
	ContentTypeAudio,
}

// IsValid reports whether t is a known content type.
func (t ContentType) IsValid() bool {
	for _, known := range ContentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ContentItem is one immutable submission in a project's content pool.
// Corrections are new items pointing at the previous version.
type ContentItem struct {
	ID                string                 `json:"id" db:"id"`
	ProjectID         string                 `json:"project_id" db:"project_id"`
	ContributorID     string                 `json:"contributor_id" db:"contributor_id"`
	ContentType       ContentType            `json:"content_type" db:"content_type"`
	Content           map[string]interface{} `json:"content" db:"content"`
	Tags              []string               `json:"tags" db:"tags"`
	QuestionID        *string                `json:"question_id,omitempty" db:"question_id"`
	Version           int                    `json:"version" db:"version"`
	PreviousVersionID *string                `json:"previous_version_id,omitempty" db:"previous_version_id"`
	Sequence          int64                  `json:"sequence" db:"sequence"` // pool append order, assigned on insert
	CreatedAt         time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at" db:"updated_at"`
}

// Text returns the prose carried by the item's payload, or "" when the
// payload has nothing textual (an image without a description).
func (c *ContentItem) Text() string {
	switch c.ContentType {
	case ContentTypeStructuredQA:
		question := c.stringField("question_text")
		answer := c.stringField("answer_text")
		if question == "" {
			return answer
		}
		if answer == "" {
			return ""
		}
		return fmt.Sprintf("Q: %s\nA: %s", question, answer)
	case ContentTypeText:
		return c.stringField("text")
	case ContentTypeImage:
		parts := make([]string, 0, 2)
		for _, key := range []string{"description", "ocr_text"} {
			if v := c.stringField(key); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, "\n")
	case ContentTypeAudio:
		return c.stringField("transcript")
	default:
		return ""
	}
}

// Answer returns the answer text of a structured_qa item.
func (c *ContentItem) Answer() string {
	return c.stringField("answer_text")
}

// Date returns the optional "date" payload field (free-form, e.g. "1962" or "1962-06").
func (c *ContentItem) Date() string {
	return c.stringField("date")
}

// HasTag reports whether the item carries tag (tags are stored case-folded).
func (c *ContentItem) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (c *ContentItem) stringField(key string) string {
	if c.Content == nil {
		return ""
	}
	v, ok := c.Content[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
