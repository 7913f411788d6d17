package memoir

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	models "memoir/internal/domain/models/memoir"
)

type extractedTheme struct {
	Name        string
	Description string
}

type themeExtraction struct {
	Themes        []extractedTheme
	Summary       string
	EmotionalTone string
}

type factExtraction struct {
	Facts  []models.Fact
	Events []models.TimelineEvent
}

// jsonPayload pulls the JSON object out of a model reply that may be wrapped
// in prose or a code fence.
func jsonPayload(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end < start {
		return "", fmt.Errorf("no JSON object in extraction output")
	}
	payload := raw[start : end+1]
	if !gjson.Valid(payload) {
		return "", fmt.Errorf("malformed JSON in extraction output")
	}
	return payload, nil
}

// parseThemeExtraction accepts themes as objects or bare strings
func parseThemeExtraction(raw string) (*themeExtraction, error) {
	payload, err := jsonPayload(raw)
	if err != nil {
		return nil, err
	}

	out := &themeExtraction{
		Summary:       strings.TrimSpace(gjson.Get(payload, "summary").String()),
		EmotionalTone: strings.TrimSpace(gjson.Get(payload, "emotional_tone").String()),
	}
	gjson.Get(payload, "themes").ForEach(func(_, v gjson.Result) bool {
		theme := extractedTheme{}
		if v.IsObject() {
			theme.Name = strings.TrimSpace(v.Get("name").String())
			theme.Description = strings.TrimSpace(v.Get("description").String())
		} else {
			theme.Name = strings.TrimSpace(v.String())
		}
		if theme.Name != "" {
			out.Themes = append(out.Themes, theme)
		}
		return true
	})
	return out, nil
}

// parseFactExtraction accepts facts as [{key,value}] or as a {key: value} object
func parseFactExtraction(raw string, contentID string) (*factExtraction, error) {
	payload, err := jsonPayload(raw)
	if err != nil {
		return nil, err
	}

	out := &factExtraction{}
	facts := gjson.Get(payload, "facts")
	switch {
	case facts.IsArray():
		facts.ForEach(func(_, v gjson.Result) bool {
			out.addFact(v.Get("key").String(), v.Get("value").String())
			return true
		})
	case facts.IsObject():
		facts.ForEach(func(k, v gjson.Result) bool {
			out.addFact(k.String(), v.String())
			return true
		})
	}

	gjson.Get(payload, "events").ForEach(func(_, v gjson.Result) bool {
		date := strings.TrimSpace(v.Get("date").String())
		label := strings.TrimSpace(v.Get("label").String())
		if date != "" && label != "" {
			out.Events = append(out.Events, models.TimelineEvent{Date: date, Label: label, ContentID: contentID})
		}
		return true
	})
	return out, nil
}

func (f *factExtraction) addFact(key, value string) {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return
	}
	f.Facts = append(f.Facts, models.Fact{Key: key, Value: value})
}
