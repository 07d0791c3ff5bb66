// Package delivery splits long assistant answers into transport-sized
// messages without breaking fenced code blocks.
package delivery

import (
	"strings"
	"unicode/utf8"
)

const fence = "```"

// DefaultLimit fits a Discord message with room to spare.
const DefaultLimit = 1800

type partKind int

const (
	textPart partKind = iota
	codePart
)

type part struct {
	kind  partKind
	lang  string
	lines []string
}

// Segment splits text into chunks of at most limit characters. Code blocks
// are never mixed with prose; a code block that does not fit is split by
// line and every piece is re-wrapped in its own fence with the same
// language tag. A single line longer than limit is emitted as is.
func Segment(text string, limit int) []string {
	if length(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for _, p := range parseParts(text) {
		switch p.kind {
		case codePart:
			chunks = append(chunks, splitCode(p, limit)...)
		default:
			chunks = append(chunks, splitText(p.lines, limit)...)
		}
	}
	return chunks
}

// parseParts walks the lines once, toggling between prose and code at
// every fence line. Fence lines are consumed; splitCode regenerates them.
func parseParts(text string) []part {
	var parts []part
	cur := part{kind: textPart}
	flush := func() {
		if len(cur.lines) > 0 || cur.kind == codePart {
			parts = append(parts, cur)
		}
	}
	for _, line := range splitLines(text) {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, fence) {
			cur.lines = append(cur.lines, line)
			continue
		}
		flush()
		if cur.kind == textPart {
			cur = part{kind: codePart, lang: strings.TrimSpace(trimmed[len(fence):])}
		} else {
			cur = part{kind: textPart}
		}
	}
	// an unterminated code block stays code through end of input
	flush()
	return parts
}

func splitText(lines []string, limit int) []string {
	var chunks []string
	var buf strings.Builder
	n := 0
	for _, line := range lines {
		l := length(line)
		if n+l > limit && n > 0 {
			chunks = append(chunks, buf.String())
			buf.Reset()
			n = 0
		}
		buf.WriteString(line)
		n += l
	}
	if n > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}

func splitCode(p part, limit int) []string {
	header := fence + p.lang + "\n"
	footer := fence + "\n"
	overhead := length(header) + length(footer)

	wrap := func(body string) string {
		if body != "" && !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		return header + body + footer
	}

	whole := strings.Join(p.lines, "")
	if length(wrap(whole)) <= limit {
		return []string{wrap(whole)}
	}

	var chunks []string
	var buf strings.Builder
	n := 0
	for _, line := range p.lines {
		l := length(line)
		// wrap terminates a final unterminated line before the footer
		if !strings.HasSuffix(line, "\n") {
			l++
		}
		if n+l+overhead > limit && n > 0 {
			chunks = append(chunks, wrap(buf.String()))
			buf.Reset()
			n = 0
		}
		buf.WriteString(line)
		n += l
	}
	if n > 0 || len(chunks) == 0 {
		chunks = append(chunks, wrap(buf.String()))
	}
	return chunks
}

// splitLines splits after every newline, keeping the terminators.
func splitLines(text string) []string {
	lines := strings.SplitAfter(text, "\n")
	if last := len(lines) - 1; last >= 0 && lines[last] == "" {
		lines = lines[:last]
	}
	return lines
}

func length(s string) int { return utf8.RuneCountInString(s) }
