package taskdoc

import (
	"regexp"
	"strings"
	"unicode"
)

// nextHeader matches a level-two header line. "### " sub-headers do not end a section.
var nextHeader = regexp.MustCompile(`(?m)^##[ \t]`)

// headerPattern builds a matcher for the header line of label. The label is
// matched case-insensitively after escaping, and the header may carry one
// decorative glyph token (an icon) before it.
func headerPattern(label string) *regexp.Regexp {
	bare := bareLabel(label)
	return regexp.MustCompile(`(?im)^##[ \t]+(?:[^\p{L}\p{N}\s]+[ \t]+)?` + regexp.QuoteMeta(bare) + `[ \t]*\r?$`)
}

// bareLabel strips leading glyph tokens so "🤖 AGENT REPORT" and "AGENT REPORT"
// address the same section.
func bareLabel(label string) string {
	label = strings.TrimSpace(label)
	for {
		token, rest, ok := strings.Cut(label, " ")
		if !ok || strings.IndexFunc(token, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) >= 0 {
			return label
		}
		label = strings.TrimSpace(rest)
	}
}

// span locates the section body for label: the bytes after the header line
// up to the next level-two header or end of document.
type span struct {
	headerEnd int // index just past the header text, before its newline
	bodyStart int
	bodyEnd   int
	hasNext   bool
}

func locate(doc, label string) (span, bool) {
	loc := headerPattern(label).FindStringIndex(doc)
	if loc == nil {
		return span{}, false
	}

	s := span{headerEnd: loc[1], bodyStart: loc[1]}
	if s.bodyStart < len(doc) && doc[s.bodyStart] == '\n' {
		s.bodyStart++
	}

	s.bodyEnd = len(doc)
	if next := nextHeader.FindStringIndex(doc[s.bodyStart:]); next != nil {
		s.bodyEnd = s.bodyStart + next[0]
		s.hasNext = true
	}
	return s, true
}

// FindSection returns the body of the section labelled label, without its header.
func FindSection(doc, label string) (string, bool) {
	s, ok := locate(doc, label)
	if !ok {
		return "", false
	}
	return strings.TrimRight(doc[s.bodyStart:s.bodyEnd], "\n"), true
}

// demoteHeaders turns level-two header lines inside a body into level-three
// ones, so the written body stays one section.
func demoteHeaders(body string) string {
	return nextHeader.ReplaceAllStringFunc(body, func(h string) string {
		return "#" + h
	})
}

// UpsertSection replaces the body of the section labelled label, or appends a
// new "## label" section at the end of doc when no such header exists.
// The header line and every other section are left untouched. Level-two
// headers inside body are demoted to level three. Applying the same upsert
// twice yields the same document as applying it once.
func UpsertSection(doc, label, body string) string {
	body = demoteHeaders(strings.TrimRight(body, "\n"))

	s, ok := locate(doc, label)
	if !ok {
		return doc + "\n\n## " + strings.TrimSpace(label) + "\n" + body + "\n"
	}

	var b strings.Builder
	b.Grow(len(doc) + len(body))
	b.WriteString(doc[:s.headerEnd])
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n")
	if s.hasNext {
		b.WriteString("\n")
		b.WriteString(doc[s.bodyEnd:])
	}
	return b.String()
}
