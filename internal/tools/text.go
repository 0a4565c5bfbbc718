package tools

import (
	"fmt"
	"regexp"
	"strings"
)

func joinLines(lines []string, trailingNewline bool) string {
	out := strings.Join(lines, "\n")
	if trailingNewline && len(lines) > 0 {
		out += "\n"
	}
	return out
}

func (e *Executor) replaceInFile(rel, search, replace string, all bool) (map[string]interface{}, error) {
	rx, err := regexp.Compile(search)
	if err != nil {
		return nil, fmt.Errorf("invalid search pattern: %w", err)
	}
	text, err := e.readWhole(rel)
	if err != nil {
		return nil, err
	}

	var (
		next  string
		count int
	)
	if all {
		count = len(rx.FindAllStringIndex(text, -1))
		next = rx.ReplaceAllString(text, replace)
	} else if m := rx.FindStringSubmatchIndex(text); m != nil {
		count = 1
		var b []byte
		b = append(b, text[:m[0]]...)
		b = rx.ExpandString(b, replace, text, m)
		b = append(b, text[m[1]:]...)
		next = string(b)
	} else {
		next = text
	}

	if count > 0 {
		if err := e.write(rel, next); err != nil {
			return nil, err
		}
	}
	return map[string]interface{}{"path": rel, "replaced": count}, nil
}

func (e *Executor) insertAtLine(rel string, line int64, content string) (map[string]interface{}, error) {
	text, err := e.readWhole(rel)
	if err != nil {
		return nil, err
	}
	lines := splitLines(text)
	insert := strings.TrimRight(content, "\n")
	idx := int(line - 1)
	if idx >= len(lines) {
		lines = append(lines, insert)
	} else {
		lines = append(lines[:idx], append([]string{insert}, lines[idx:]...)...)
	}
	if err := e.write(rel, joinLines(lines, strings.HasSuffix(text, "\n"))); err != nil {
		return nil, err
	}
	return map[string]interface{}{"path": rel, "line": line}, nil
}

// deleteLines removes the inclusive 1-based range [start, end]. A range that
// begins past the end of the file deletes nothing.
func (e *Executor) deleteLines(rel string, start, end int64) (map[string]interface{}, error) {
	if end < start {
		return nil, &ArgumentError{Tool: "delete_lines", Argument: "end", Reason: "end must be >= start"}
	}
	text, err := e.readWhole(rel)
	if err != nil {
		return nil, err
	}
	lines := splitLines(text)
	s := int(start - 1)
	if s < 0 {
		s = 0
	}
	if s >= len(lines) {
		return map[string]interface{}{"path": rel, "deleted": 0}, nil
	}
	last := int(end - 1)
	if last > len(lines)-1 {
		last = len(lines) - 1
	}
	deleted := last - s + 1
	lines = append(lines[:s], lines[last+1:]...)
	if err := e.write(rel, joinLines(lines, strings.HasSuffix(text, "\n"))); err != nil {
		return nil, err
	}
	return map[string]interface{}{"path": rel, "deleted": deleted}, nil
}
