package tools

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pmezard/go-difflib/difflib"
)

// ContentMatch is one search_content hit.
type ContentMatch struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Snippet string `json:"snippet"`
}

// SearchOutput is the search_content payload.
type SearchOutput struct {
	Matches   []ContentMatch `json:"matches"`
	Truncated bool           `json:"truncated"`
}

// FileSearchOutput is the search_files payload.
type FileSearchOutput struct {
	Matches   []string `json:"matches"`
	Truncated bool     `json:"truncated"`
}

// FileInfo is the get_file_info payload.
type FileInfo struct {
	Path           string `json:"path"`
	IsDir          bool   `json:"is_dir"`
	Size           *int64 `json:"size,omitempty"`
	ModifiedUnixMs int64  `json:"modified_unix_ms"`
}

// walkFiles lists regular files below dir in lexical order. Symlinks are
// skipped, never followed. The walk stops after max_search_files files.
func (e *Executor) walkFiles(dir string) (files []string, truncated bool, err error) {
	start, err := e.guard.ResolveExisting(dir)
	if err != nil {
		return nil, false, err
	}
	info, err := os.Stat(start)
	if err != nil {
		return nil, false, err
	}
	if !info.IsDir() {
		return nil, false, fmt.Errorf("search path is not a directory: %s", dir)
	}

	max := e.limits.MaxSearchFiles
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable subtrees are skipped.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if len(files) >= max {
			truncated = true
			return filepath.SkipAll
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return files, truncated, nil
}

// fileFilter decides whether a file takes part in a search, given its
// workspace-relative slash path.
type fileFilter func(rel string) bool

// compileFilePattern builds a filter from a file_pattern argument:
// "re:<regex>" matches the relative path, a pattern containing glob
// metacharacters is a doublestar glob tried against the base name and then
// the relative path, anything else is a substring of the base name.
func compileFilePattern(pattern string) (fileFilter, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return func(string) bool { return true }, nil
	}
	if expr, ok := strings.CutPrefix(pattern, "re:"); ok {
		rx, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid file_pattern regex: %w", err)
		}
		return rx.MatchString, nil
	}
	if strings.ContainsAny(pattern, "*?[") {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid file_pattern glob: %s", pattern)
		}
		return func(rel string) bool {
			if ok, _ := doublestar.Match(pattern, path.Base(rel)); ok {
				return true
			}
			ok, _ := doublestar.Match(pattern, rel)
			return ok
		}, nil
	}
	return func(rel string) bool {
		return strings.Contains(path.Base(rel), pattern)
	}, nil
}

func (e *Executor) searchContent(pattern, dir, filePattern string, maxMatches int) (SearchOutput, error) {
	out := SearchOutput{Matches: []ContentMatch{}}
	rx, err := regexp.Compile(pattern)
	if err != nil {
		return out, fmt.Errorf("invalid pattern: %w", err)
	}
	filter, err := compileFilePattern(filePattern)
	if err != nil {
		return out, err
	}
	files, walkTruncated, err := e.walkFiles(dir)
	if err != nil {
		return out, err
	}
	out.Truncated = walkTruncated

	skipAbove := e.limits.MaxReadBytes * 10
	for _, file := range files {
		if len(out.Matches) >= maxMatches {
			out.Truncated = true
			break
		}
		rel, err := e.guard.Relative(file)
		if err != nil || !filter(rel) {
			continue
		}
		info, err := os.Stat(file)
		if err != nil || info.Size() > skipAbove {
			continue
		}
		text, truncated, err := e.readText(rel)
		if err != nil {
			continue
		}
		if truncated {
			out.Truncated = true
		}
		for i, line := range splitLines(text) {
			if len(out.Matches) >= maxMatches {
				out.Truncated = true
				break
			}
			loc := rx.FindStringIndex(line)
			if loc == nil {
				continue
			}
			out.Matches = append(out.Matches, ContentMatch{
				Path:    rel,
				Line:    i + 1,
				Column:  loc[0] + 1,
				Snippet: strings.TrimSpace(line),
			})
		}
	}
	return out, nil
}

func (e *Executor) searchFiles(pattern, dir string) (FileSearchOutput, error) {
	out := FileSearchOutput{Matches: []string{}}
	rx, err := regexp.Compile(pattern)
	if err != nil {
		return out, fmt.Errorf("invalid pattern: %w", err)
	}
	files, walkTruncated, err := e.walkFiles(dir)
	if err != nil {
		return out, err
	}
	out.Truncated = walkTruncated
	for _, file := range files {
		if len(out.Matches) >= e.limits.MaxSearchMatches {
			out.Truncated = true
			break
		}
		if !rx.MatchString(filepath.Base(file)) {
			continue
		}
		rel, err := e.guard.Relative(file)
		if err != nil {
			continue
		}
		out.Matches = append(out.Matches, rel)
	}
	return out, nil
}

func (e *Executor) getFileInfo(rel string) (FileInfo, error) {
	full, err := e.guard.ResolveExisting(rel)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return FileInfo{}, err
	}
	fi := FileInfo{
		Path:           rel,
		IsDir:          info.IsDir(),
		ModifiedUnixMs: info.ModTime().UnixMilli(),
	}
	if info.Mode().IsRegular() {
		size := info.Size()
		fi.Size = &size
	}
	return fi, nil
}

func (e *Executor) countLines(rel string) (map[string]interface{}, error) {
	text, truncated, err := e.readText(rel)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"path":      rel,
		"lines":     len(splitLines(text)),
		"truncated": truncated,
	}, nil
}

func (e *Executor) diffFiles(rel1, rel2 string) (map[string]interface{}, error) {
	a, aTrunc, err := e.readText(rel1)
	if err != nil {
		return nil, err
	}
	b, bTrunc, err := e.readText(rel2)
	if err != nil {
		return nil, err
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: rel1,
		ToFile:   rel2,
		Context:  3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute diff: %w", err)
	}
	truncated := aTrunc || bTrunc
	if truncated {
		diff += "\n\n[diff truncated due to file size limit]"
	}
	return map[string]interface{}{"diff": diff, "truncated": truncated}, nil
}

// splitLines splits on newlines, dropping a trailing "\r" from each line and
// the empty element after a final newline.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
