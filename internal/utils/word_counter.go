package utils

import (
	"strings"
	"unicode"
)

// markdownMarkers are stripped before counting so "**bold**" counts as one word
// and a lone "-" bullet counts as none.
var markdownMarkers = strings.NewReplacer(
	"`", "",
	"**", "",
	"*", "",
	"__", "",
	"_", " ",
	"~~", "",
	"#", "",
	">", "",
)

// CountWords counts the words of a markdown string
func CountWords(markdown string) int {
	text := markdownMarkers.Replace(removeCodeBlocks(markdown))

	count := 0
	for _, field := range strings.FieldsFunc(text, unicode.IsSpace) {
		if isWord(field) {
			count++
		}
	}
	return count
}

// isWord rejects list bullets, numbered list markers and rules
func isWord(token string) bool {
	if token == "-" || token == "---" {
		return false
	}
	if strings.HasSuffix(token, ".") && len(token) > 1 && strings.TrimLeftFunc(token[:len(token)-1], unicode.IsDigit) == "" {
		return false
	}
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func removeCodeBlocks(text string) string {
	for {
		start := strings.Index(text, "```")
		if start == -1 {
			return text
		}
		end := strings.Index(text[start+3:], "```")
		if end == -1 {
			return text
		}
		text = text[:start] + text[start+end+6:]
	}
}
