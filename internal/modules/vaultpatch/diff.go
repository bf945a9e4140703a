package vaultpatch

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
)

const (
	OpContext = ' '
	OpAdd     = '+'
	OpDelete  = '-'
)

type Line struct {
	Op   byte
	Text string
}

type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Before is the pre-image the hunk expects to find: context and deletions.
func (h Hunk) Before() []string {
	out := make([]string, 0, len(h.Lines))
	for _, l := range h.Lines {
		if l.Op != OpAdd {
			out = append(out, l.Text)
		}
	}
	return out
}

// After is what replaces the pre-image: context and additions.
func (h Hunk) After() []string {
	out := make([]string, 0, len(h.Lines))
	for _, l := range h.Lines {
		if l.Op != OpDelete {
			out = append(out, l.Text)
		}
	}
	return out
}

// ParseUnifiedDiff parses the hunks of a single-file unified diff. File
// headers ("---", "+++", "diff --git") and "\ No newline" markers are
// skipped; a body line with any prefix other than ' ', '+' or '-' is an
// error.
func ParseUnifiedDiff(text string) ([]Hunk, error) {
	raw := strings.Split(text, "\n")
	if n := len(raw); n > 0 && raw[n-1] == "" {
		raw = raw[:n-1]
	}

	var b strings.Builder
	inHunk := false
	for i, line := range raw {
		switch {
		case strings.HasPrefix(line, "---"),
			strings.HasPrefix(line, "+++"),
			strings.HasPrefix(line, "diff --git"),
			strings.HasPrefix(line, `\ No newline`):
			continue
		case strings.HasPrefix(line, "@@"):
			inHunk = true
		case line == "" || line == "\r":
			// an empty context line whose leading space was stripped
			line = " "
		case line[0] == OpContext || line[0] == OpAdd || line[0] == OpDelete:
		default:
			return nil, apperr.Validation("diff_parse_error",
				fmt.Sprintf("unified diff line %d: unexpected prefix %q", i+1, line[:1]),
				map[string]any{"line": i + 1})
		}
		if !inHunk {
			return nil, apperr.Validation("diff_parse_error",
				fmt.Sprintf("unified diff line %d: content before first hunk header", i+1),
				map[string]any{"line": i + 1})
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if !inHunk {
		return nil, apperr.Validation("diff_no_hunks", "unified diff contains no hunks", nil)
	}

	parsed, err := diff.ParseHunks([]byte(b.String()))
	if err != nil {
		e := apperr.Validation("diff_parse_error", "malformed unified diff", nil)
		e.Cause = err
		return nil, e
	}

	out := make([]Hunk, 0, len(parsed))
	for _, h := range parsed {
		hunk := Hunk{
			OldStart: int(h.OrigStartLine),
			OldLines: int(h.OrigLines),
			NewStart: int(h.NewStartLine),
			NewLines: int(h.NewLines),
		}
		body := strings.TrimSuffix(string(h.Body), "\n")
		if body != "" {
			for _, l := range strings.Split(body, "\n") {
				if l == "" {
					hunk.Lines = append(hunk.Lines, Line{Op: OpContext})
					continue
				}
				hunk.Lines = append(hunk.Lines, Line{Op: l[0], Text: l[1:]})
			}
		}
		out = append(out, hunk)
	}
	return out, nil
}
