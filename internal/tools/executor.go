package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/conclave/internal/sandbox"
)

// ErrTimeout is reported when a tool call exceeds its time limit.
var ErrTimeout = errors.New("tool execution timed out")

// poolSize bounds concurrent blocking tool work. Tool calls are disk and
// regex bound, so oversubscribe CPUs moderately.
var poolSize = func() int {
	n := runtime.NumCPU() * 4
	if n < 4 {
		n = 4
	}
	if n > 32 {
		n = 32
	}
	return n
}()

// Executor runs tool calls against one sandboxed workspace.
type Executor struct {
	guard  *sandbox.Guard
	limits Limits
	pool   *ants.Pool
	logger *logging.Logger

	// run is dispatch, replaced in tests
	run func(name string, a args) (interface{}, error)
}

// NewExecutor creates an executor rooted at the guard's workspace.
// Zero-valued limits fall back to DefaultLimits.
func NewExecutor(guard *sandbox.Guard, limits Limits) (*Executor, error) {
	if guard == nil {
		return nil, fmt.Errorf("tool executor requires a sandbox guard")
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool worker pool: %w", err)
	}
	e := &Executor{
		guard:  guard,
		limits: limits.withDefaults(),
		pool:   pool,
		logger: logging.New().WithComponent("tools"),
	}
	e.run = e.dispatch
	return e, nil
}

// Close releases the worker pool. Work already submitted keeps running.
func (e *Executor) Close() {
	e.pool.Release()
}

// Limits returns the effective limits.
func (e *Executor) Limits() Limits {
	return e.limits
}

// Definitions returns the tool catalog.
func (e *Executor) Definitions() []Definition {
	return Catalog()
}

type outcome struct {
	output interface{}
	err    error
}

// Execute runs one call. It never panics and never returns an error outside
// the Result: argument errors, sandbox violations, I/O failures and timeouts
// all come back with OK false.
func (e *Executor) Execute(ctx context.Context, call Call) Result {
	start := time.Now()
	ctx, span := telemetry.GetTracer().StartSpan(ctx, "tool."+call.Name)
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.Name), attribute.String("tool.call_id", call.ID))

	timeout := time.Duration(e.limits.TimeoutMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Submit blocks while every worker is busy, so it waits inside the
	// deadline too. Work that only gets a worker after the deadline is skipped.
	done := make(chan outcome, 1)
	go func() {
		err := e.pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			defer func() {
				if r := recover(); r != nil {
					done <- outcome{err: fmt.Errorf("tool %s panicked: %v", call.Name, r)}
				}
			}()
			out, err := e.run(call.Name, args{tool: call.Name, m: call.Args})
			done <- outcome{output: out, err: err}
		})
		if err != nil {
			done <- outcome{err: fmt.Errorf("failed to schedule tool: %w", err)}
		}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		// The worker is abandoned; it finishes on its own and its result is dropped.
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res = outcome{err: fmt.Errorf("tool call cancelled: %w", ctx.Err())}
			break
		}
		res = outcome{err: fmt.Errorf("%w after %dms", ErrTimeout, e.limits.TimeoutMs)}
		e.logger.Warn("tool call timed out", map[string]interface{}{
			"tool":       call.Name,
			"timeout_ms": e.limits.TimeoutMs,
		})
	}

	result := Result{
		ToolCallID: call.ID,
		Name:       call.Name,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if res.err != nil {
		result.Output = map[string]interface{}{}
		result.Error = res.err.Error()
		span.RecordError(res.err)
	} else {
		result.OK = true
		result.Output = res.output
	}
	span.SetAttributes(attribute.Bool("tool.ok", result.OK), attribute.Int64("tool.duration_ms", result.DurationMs))

	e.logger.Debug("tool call", map[string]interface{}{
		"tool":        call.Name,
		"ok":          result.OK,
		"duration_ms": result.DurationMs,
	})
	return result
}

func (e *Executor) dispatch(name string, a args) (interface{}, error) {
	switch name {
	case "list_files":
		dir, err := a.optionalString("path")
		if err != nil {
			return nil, err
		}
		return e.listFiles(dir)
	case "read_file":
		path, err := a.requiredPath("path")
		if err != nil {
			return nil, err
		}
		offset, _, err := a.optionalInt("offset")
		if err != nil {
			return nil, err
		}
		limit, hasLimit, err := a.optionalInt("limit")
		if err != nil {
			return nil, err
		}
		if !hasLimit {
			limit = -1
		}
		return e.readFile(path, offset, limit)
	case "write_file":
		path, err := a.requiredPath("path")
		if err != nil {
			return nil, err
		}
		content, err := a.requiredString("content")
		if err != nil {
			return nil, err
		}
		return e.writeFile(path, content)
	case "append_to_file":
		path, err := a.requiredPath("path")
		if err != nil {
			return nil, err
		}
		content, err := a.requiredString("content")
		if err != nil {
			return nil, err
		}
		return e.appendToFile(path, content)
	case "delete_file":
		path, err := a.requiredPath("path")
		if err != nil {
			return nil, err
		}
		return e.deleteFile(path)
	case "rename_file":
		oldPath, err := a.requiredPath("old_path")
		if err != nil {
			return nil, err
		}
		newPath, err := a.requiredPath("new_path")
		if err != nil {
			return nil, err
		}
		return e.renameFile(oldPath, newPath)
	case "create_directory":
		path, err := a.requiredPath("path")
		if err != nil {
			return nil, err
		}
		return e.createDirectory(path)
	case "search_content":
		pattern, err := a.requiredString("pattern")
		if err != nil {
			return nil, err
		}
		dir, err := a.optionalString("path")
		if err != nil {
			return nil, err
		}
		filePattern, err := a.optionalString("file_pattern")
		if err != nil {
			return nil, err
		}
		return e.searchContent(pattern, dir, filePattern, e.limits.MaxSearchMatches)
	case "search_files":
		pattern, err := a.requiredString("pattern")
		if err != nil {
			return nil, err
		}
		dir, err := a.optionalString("path")
		if err != nil {
			return nil, err
		}
		return e.searchFiles(pattern, dir)
	case "get_file_info":
		path, err := a.requiredPath("path")
		if err != nil {
			return nil, err
		}
		return e.getFileInfo(path)
	case "count_lines":
		path, err := a.requiredPath("path")
		if err != nil {
			return nil, err
		}
		return e.countLines(path)
	case "diff_files":
		path1, err := a.requiredPath("path1")
		if err != nil {
			return nil, err
		}
		path2, err := a.requiredPath("path2")
		if err != nil {
			return nil, err
		}
		return e.diffFiles(path1, path2)
	case "find_definition", "find_references":
		ident, err := a.requiredString("name")
		if err != nil {
			return nil, err
		}
		if ident == "" {
			return nil, a.missing("name")
		}
		dir, err := a.optionalString("path")
		if err != nil {
			return nil, err
		}
		if name == "find_definition" {
			return e.findDefinition(ident, dir)
		}
		return e.findReferences(ident, dir)
	case "list_functions":
		path, err := a.requiredPath("path")
		if err != nil {
			return nil, err
		}
		return e.listFunctions(path)
	case "list_imports":
		path, err := a.requiredPath("path")
		if err != nil {
			return nil, err
		}
		return e.listImports(path)
	case "replace_in_file":
		path, err := a.requiredPath("path")
		if err != nil {
			return nil, err
		}
		search, err := a.requiredString("search")
		if err != nil {
			return nil, err
		}
		replace, err := a.requiredString("replace")
		if err != nil {
			return nil, err
		}
		all, err := a.optionalBool("all", true)
		if err != nil {
			return nil, err
		}
		return e.replaceInFile(path, search, replace, all)
	case "insert_at_line":
		path, err := a.requiredPath("path")
		if err != nil {
			return nil, err
		}
		line, err := a.requiredInt("line")
		if err != nil {
			return nil, err
		}
		if line < 1 {
			return nil, a.mistyped("line", "integer >= 1")
		}
		content, err := a.requiredString("content")
		if err != nil {
			return nil, err
		}
		return e.insertAtLine(path, line, content)
	case "delete_lines":
		path, err := a.requiredPath("path")
		if err != nil {
			return nil, err
		}
		start, err := a.requiredInt("start")
		if err != nil {
			return nil, err
		}
		end, err := a.requiredInt("end")
		if err != nil {
			return nil, err
		}
		if end < start {
			return nil, &ArgumentError{Tool: name, Argument: "end", Reason: "end must be >= start"}
		}
		return e.deleteLines(path, start, end)
	}
	return nil, fmt.Errorf("unknown tool: %s", name)
}
