// Package tools provides the sandboxed workspace tools agents may call mid-turn.
package tools

import (
	"encoding/json"
	"fmt"
)

// Definition is the LLM-facing description of a tool.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Call is one tool invocation requested by a model.
type Call struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"arguments"`
}

// Result is the outcome of a Call. Failures are carried in Error with OK false.
type Result struct {
	ToolCallID string      `json:"tool_call_id"`
	Name       string      `json:"name"`
	OK         bool        `json:"ok"`
	Output     interface{} `json:"output"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

// Trace pairs a call with its result.
type Trace struct {
	Call   Call   `json:"call"`
	Result Result `json:"result"`
}

// Message renders the result as the JSON body of a tool message fed back to
// the model.
func (r Result) Message() string {
	var errText interface{}
	if r.Error != "" {
		errText = r.Error
	}
	output := r.Output
	if output == nil {
		output = map[string]interface{}{}
	}
	data, err := json.Marshal(map[string]interface{}{
		"ok":     r.OK,
		"name":   r.Name,
		"output": output,
		"error":  errText,
	})
	if err != nil {
		return fmt.Sprintf(`{"ok":false,"name":%q,"output":{},"error":%q}`, r.Name, err.Error())
	}
	return string(data)
}

// ArgumentError reports a missing or malformed tool argument.
type ArgumentError struct {
	Tool     string
	Argument string
	Reason   string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid argument %q: %s", e.Tool, e.Argument, e.Reason)
}

// Limits bounds the work a single tool call may do.
type Limits struct {
	MaxReadBytes     int64
	MaxSearchMatches int
	MaxSearchFiles   int
	TimeoutMs        int64
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		MaxReadBytes:     50000,
		MaxSearchMatches: 200,
		MaxSearchFiles:   2000,
		TimeoutMs:        10000,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxReadBytes <= 0 {
		l.MaxReadBytes = d.MaxReadBytes
	}
	if l.MaxSearchMatches <= 0 {
		l.MaxSearchMatches = d.MaxSearchMatches
	}
	if l.MaxSearchFiles <= 0 {
		l.MaxSearchFiles = d.MaxSearchFiles
	}
	if l.TimeoutMs <= 0 {
		l.TimeoutMs = d.TimeoutMs
	}
	return l
}

func str(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func integer(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": desc}
}

func object(props map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

const optionalDir = "Relative directory path (optional)."

// Catalog returns the definitions of every built-in tool in a stable order.
func Catalog() []Definition {
	return []Definition{
		{
			Name:        "list_files",
			Description: "List directory entries under the execution workspace.",
			Parameters:  object(map[string]interface{}{"path": str(optionalDir)}),
		},
		{
			Name:        "read_file",
			Description: "Read a UTF-8 text file under the execution workspace.",
			Parameters: object(map[string]interface{}{
				"path":   str("Relative file path."),
				"offset": integer("Byte offset to start reading from (optional)."),
				"limit":  integer("Maximum bytes to read (optional)."),
			}, "path"),
		},
		{
			Name:        "write_file",
			Description: "Write or create a UTF-8 text file under the execution workspace.",
			Parameters: object(map[string]interface{}{
				"path":    str("Relative file path."),
				"content": str("File content."),
			}, "path", "content"),
		},
		{
			Name:        "append_to_file",
			Description: "Append text to a file under the execution workspace, creating it if needed.",
			Parameters: object(map[string]interface{}{
				"path":    str("Relative file path."),
				"content": str("Text to append."),
			}, "path", "content"),
		},
		{
			Name:        "delete_file",
			Description: "Delete a file (or empty directory) under the execution workspace.",
			Parameters:  object(map[string]interface{}{"path": str("Relative path.")}, "path"),
		},
		{
			Name:        "rename_file",
			Description: "Rename or move a file under the execution workspace.",
			Parameters: object(map[string]interface{}{
				"old_path": str("Existing relative path."),
				"new_path": str("New relative path."),
			}, "old_path", "new_path"),
		},
		{
			Name:        "create_directory",
			Description: "Create a directory under the execution workspace.",
			Parameters:  object(map[string]interface{}{"path": str("Relative directory path.")}, "path"),
		},
		{
			Name:        "search_content",
			Description: "Search file contents under the workspace using a regular expression.",
			Parameters: object(map[string]interface{}{
				"pattern":      str("Regular expression."),
				"path":         str(optionalDir),
				"file_pattern": str(`Optional filename filter: glob ("*.go", "**/*.md"), "re:<regex>", or substring.`),
			}, "pattern"),
		},
		{
			Name:        "search_files",
			Description: "Search filenames under the workspace using a regular expression.",
			Parameters: object(map[string]interface{}{
				"pattern": str("Regular expression matched against file names."),
				"path":    str(optionalDir),
			}, "pattern"),
		},
		{
			Name:        "get_file_info",
			Description: "Get file metadata (size, modified time, type) under the workspace.",
			Parameters:  object(map[string]interface{}{"path": str("Relative path.")}, "path"),
		},
		{
			Name:        "count_lines",
			Description: "Count lines in a text file under the workspace.",
			Parameters:  object(map[string]interface{}{"path": str("Relative file path.")}, "path"),
		},
		{
			Name:        "diff_files",
			Description: "Compute a unified diff between two text files under the workspace.",
			Parameters: object(map[string]interface{}{
				"path1": str("First relative file path."),
				"path2": str("Second relative file path."),
			}, "path1", "path2"),
		},
		{
			Name:        "find_definition",
			Description: "Find likely function/class/type definitions by name (regex-based).",
			Parameters: object(map[string]interface{}{
				"name": str("Identifier to look for."),
				"path": str(optionalDir),
			}, "name"),
		},
		{
			Name:        "find_references",
			Description: "Find references by name (word-boundary regex) under the workspace.",
			Parameters: object(map[string]interface{}{
				"name": str("Identifier to look for."),
				"path": str(optionalDir),
			}, "name"),
		},
		{
			Name:        "list_functions",
			Description: "List functions in a file (regex-based).",
			Parameters:  object(map[string]interface{}{"path": str("Relative file path.")}, "path"),
		},
		{
			Name:        "list_imports",
			Description: "List imports in a file (regex-based).",
			Parameters:  object(map[string]interface{}{"path": str("Relative file path.")}, "path"),
		},
		{
			Name:        "replace_in_file",
			Description: "Replace content in a file using a regular expression.",
			Parameters: object(map[string]interface{}{
				"path":    str("Relative file path."),
				"search":  str("Regular expression to find."),
				"replace": str("Replacement text ($1 style group references allowed)."),
				"all":     map[string]interface{}{"type": "boolean", "description": "Replace every match (default true)."},
			}, "path", "search", "replace"),
		},
		{
			Name:        "insert_at_line",
			Description: "Insert content at a 1-based line number in a file.",
			Parameters: object(map[string]interface{}{
				"path":    str("Relative file path."),
				"line":    integer("1-based line number."),
				"content": str("Text to insert."),
			}, "path", "line", "content"),
		},
		{
			Name:        "delete_lines",
			Description: "Delete an inclusive 1-based line range in a file.",
			Parameters: object(map[string]interface{}{
				"path":  str("Relative file path."),
				"start": integer("First line to delete (1-based)."),
				"end":   integer("Last line to delete (inclusive)."),
			}, "path", "start", "end"),
		},
	}
}
