// Package textclean normalizes raw text extracted by the vision collaborator
// before it is persisted on a note.
package textclean

import (
	"regexp"
	"strings"
)

var (
	spaceRuns  = regexp.MustCompile(`[ \t]{2,}`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
	trailingWS = regexp.MustCompile(`[ \t]+\n`)
)

// Clean normalizes line endings, strips trailing whitespace, collapses runs
// of spaces and limits consecutive blank lines to one.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = trailingWS.ReplaceAllString(text, "\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
