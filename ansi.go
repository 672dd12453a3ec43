package focuspuller

import (
	"fmt"
	"html/template"
	"os"
	"sort"
	"strings"
)

// SaveConsoleFrame writes a console view to disk as an .ansi frame. Metadata
// goes into commented header lines, sorted by key, so the escape stream
// below stays byte-exact and frames diff cleanly between runs.
func SaveConsoleFrame(path, view string, meta map[string]string) error {
	var frame strings.Builder

	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		frame.WriteString(fmt.Sprintf("# %s: %s\n", key, meta[key]))
	}
	frame.WriteString(view)

	if err := os.WriteFile(path, []byte(frame.String()), 0644); err != nil {
		return fmt.Errorf("failed to write console frame: %w", err)
	}
	return nil
}

// ConsoleFrameHTML converts a saved .ansi console frame into markup for the
// session report. Header lines are dropped and SGR color sequences become
// styled spans.
func ConsoleFrameHTML(path string) (template.HTML, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read console frame: %w", err)
	}

	content := extractConsoleText(string(raw))
	if strings.TrimSpace(content) == "" {
		return template.HTML(`<div class="terminal-empty">No console output captured</div>`), nil
	}
	return template.HTML(convertANSIToHTML(content)), nil
}

// extractConsoleText strips the leading metadata header. Only the top block
// is dropped; a "#" later in the view is console output and survives.
func extractConsoleText(raw string) string {
	lines := strings.Split(raw, "\n")
	start := 0
	for start < len(lines) && strings.HasPrefix(lines[start], "# ") {
		start++
	}
	return strings.Join(lines[start:], "\n")
}

// convertANSIToHTML walks the frame byte by byte: escape sequences map to
// spans, newlines to breaks, and markup characters are entity-escaped so the
// view cannot inject into the report.
func convertANSIToHTML(content string) string {
	var html strings.Builder

	i := 0
	for i < len(content) {
		switch ch := content[i]; {
		case ch == '\x1b' && i+1 < len(content) && content[i+1] == '[':
			seq, next := readEscapeSequence(content, i)
			html.WriteString(sequenceToSpan(seq))
			i = next
		case ch == '\n':
			html.WriteString("<br>")
			i++
		case ch == '\r':
			i++
		case ch == '&':
			html.WriteString("&amp;")
			i++
		case ch == '<':
			html.WriteString("&lt;")
			i++
		case ch == '>':
			html.WriteString("&gt;")
			i++
		default:
			html.WriteByte(ch)
			i++
		}
	}
	return html.String()
}

// readEscapeSequence scans one CSI sequence starting at index i and returns
// the sequence body including its terminator, plus the index just past it.
// An unterminated sequence consumes the rest of the frame.
func readEscapeSequence(content string, i int) (string, int) {
	j := i + 2
	for j < len(content) {
		ch := content[j]
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') {
			return content[i+2 : j+1], j + 1
		}
		j++
	}
	return "", len(content)
}

// sequenceToSpan maps the SGR sequences the console HUD emits onto inline
// styled spans, GitHub dark palette. Unknown sequences are dropped, so
// cursor movement and screen clears never leak into the report.
func sequenceToSpan(seq string) string {
	switch seq {
	case "0m":
		return "</span>"
	case "1;38;5;39m":
		return `<span style="color: #58a6ff; font-weight: bold;">`
	case "1;38;5;78m":
		return `<span style="color: #3fb950; font-weight: bold;">`
	case "38;5;240m":
		return `<span style="color: #7d8590;">`
	case "1;38;5;255m":
		return `<span style="color: #ffffff; font-weight: bold;">`
	case "38;5;246m":
		return `<span style="color: #8b949e;">`
	case "38;5;244m":
		return `<span style="color: #6e7681;">`
	case "1;38;5;255;48;5;240m":
		return `<span style="color: #ffffff; background-color: #484f58; font-weight: bold;">`
	case "3;38;5;244m":
		return `<span style="color: #6e7681; font-style: italic;">`
	default:
		return ""
	}
}
