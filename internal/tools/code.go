package tools

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

// codeFilePattern restricts code discovery to common source extensions.
const codeFilePattern = `re:.*\.(go|rs|ts|tsx|js|jsx|py|java|kt|swift|c|cc|cpp|h|hpp)$`

// CodeMatch is one find_definition / find_references hit.
type CodeMatch struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Snippet string `json:"snippet"`
}

// LineMatch is a line-numbered hit inside a single file.
type LineMatch struct {
	Line    int    `json:"line"`
	Snippet string `json:"snippet"`
}

func definitionPatterns(name string) []string {
	n := regexp.QuoteMeta(name)
	return []string{
		`^\s*func\s+(\([^)]*\)\s*)?` + n + `\b`,
		`^\s*type\s+` + n + `\b`,
		`^\s*(pub\s+)?(async\s+)?fn\s+` + n + `\b`,
		`^\s*(export\s+)?(async\s+)?function\s+` + n + `\b`,
		`^\s*(export\s+)?class\s+` + n + `\b`,
		`^\s*(export\s+)?(const|let|var)\s+` + n + `\s*=`,
		`^\s*def\s+` + n + `\b`,
		`^\s*(pub\s+)?(struct|enum|trait)\s+` + n + `\b`,
		`^\s*(export\s+)?(interface|type)\s+` + n + `\b`,
	}
}

func (e *Executor) findDefinition(name, dir string) (map[string]interface{}, error) {
	matches := []CodeMatch{}
	seen := make(map[string]bool)
	truncated := false
	max := e.limits.MaxSearchMatches
	for _, pat := range definitionPatterns(name) {
		if len(matches) >= max {
			truncated = true
			break
		}
		res, err := e.searchContent(pat, dir, codeFilePattern, max-len(matches))
		if err != nil {
			return nil, err
		}
		truncated = truncated || res.Truncated
		for _, m := range res.Matches {
			// Overlapping patterns (Go "type" vs TS "type") may hit the same line.
			key := m.Path + ":" + strconv.Itoa(m.Line)
			if seen[key] {
				continue
			}
			seen[key] = true
			matches = append(matches, CodeMatch{Path: m.Path, Line: m.Line, Snippet: m.Snippet})
		}
	}
	return map[string]interface{}{"matches": matches, "truncated": truncated}, nil
}

func (e *Executor) findReferences(name, dir string) (map[string]interface{}, error) {
	res, err := e.searchContent(`\b`+regexp.QuoteMeta(name)+`\b`, dir, codeFilePattern, e.limits.MaxSearchMatches)
	if err != nil {
		return nil, err
	}
	matches := make([]CodeMatch, 0, len(res.Matches))
	for _, m := range res.Matches {
		matches = append(matches, CodeMatch{Path: m.Path, Line: m.Line, Snippet: m.Snippet})
	}
	return map[string]interface{}{"matches": matches, "truncated": res.Truncated}, nil
}

var (
	goFuncRx  = regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s*)?([A-Za-z0-9_]+)`)
	rustFnRx  = regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+([A-Za-z0-9_]+)\b`)
	pyDefRx   = regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z0-9_]+)\b`)
	jsFuncRx  = regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+([A-Za-z0-9_]+)\b`)
	goImpOpen = regexp.MustCompile(`^import\s*\($`)
)

func (e *Executor) listFunctions(rel string) (map[string]interface{}, error) {
	text, truncated, err := e.readText(rel)
	if err != nil {
		return nil, err
	}
	var rx *regexp.Regexp
	switch strings.TrimPrefix(path.Ext(rel), ".") {
	case "go":
		rx = goFuncRx
	case "rs":
		rx = rustFnRx
	case "py":
		rx = pyDefRx
	default:
		rx = jsFuncRx
	}

	functions := []LineMatch{}
	for i, line := range splitLines(text) {
		if m := rx.FindStringSubmatch(line); m != nil {
			functions = append(functions, LineMatch{Line: i + 1, Snippet: m[len(m)-1]})
		}
	}
	return map[string]interface{}{"path": rel, "functions": functions, "truncated": truncated}, nil
}

func (e *Executor) listImports(rel string) (map[string]interface{}, error) {
	text, truncated, err := e.readText(rel)
	if err != nil {
		return nil, err
	}
	imports := []LineMatch{}
	inBlock := false
	for i, line := range splitLines(text) {
		l := strings.TrimSpace(line)
		switch {
		case inBlock:
			if l == ")" {
				inBlock = false
				continue
			}
			if l != "" && !strings.HasPrefix(l, "//") {
				imports = append(imports, LineMatch{Line: i + 1, Snippet: l})
			}
		case goImpOpen.MatchString(l):
			inBlock = true
		case strings.HasPrefix(l, "use "), strings.HasPrefix(l, "import "),
			strings.HasPrefix(l, "from "), strings.HasPrefix(l, "#include"):
			imports = append(imports, LineMatch{Line: i + 1, Snippet: l})
		}
	}
	return map[string]interface{}{"path": rel, "imports": imports, "truncated": truncated}, nil
}
