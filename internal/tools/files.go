package tools

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileEntry is one list_files row.
type FileEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  *int64 `json:"size,omitempty"`
}

// ReadOutput is the read_file payload.
type ReadOutput struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	Truncated  bool   `json:"truncated"`
	TotalBytes int64  `json:"total_bytes"`
	Offset     int64  `json:"offset"`
}

func (e *Executor) listFiles(dir string) ([]FileEntry, error) {
	target, err := e.guard.ResolveExisting(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("target is not a directory: %s", dir)
	}

	dirEntries, err := os.ReadDir(target)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}
	entries := make([]FileEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		fi, err := de.Info()
		if err != nil {
			continue
		}
		rel, err := e.guard.Relative(filepath.Join(target, de.Name()))
		if err != nil {
			continue
		}
		entry := FileEntry{Path: rel, IsDir: fi.IsDir()}
		if fi.Mode().IsRegular() {
			size := fi.Size()
			entry.Size = &size
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

// readRange reads up to limit bytes from offset. A negative limit means
// "up to max_read_bytes"; any limit is capped at max_read_bytes.
func (e *Executor) readRange(rel string, offset, limit int64) (ReadOutput, error) {
	out := ReadOutput{Path: rel, Offset: offset}
	full, err := e.guard.ResolveExisting(rel)
	if err != nil {
		return out, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return out, err
	}
	if !info.Mode().IsRegular() {
		return out, fmt.Errorf("path is not a file: %s", rel)
	}

	out.TotalBytes = info.Size()
	if offset >= out.TotalBytes {
		return out, nil
	}
	effective := e.limits.MaxReadBytes
	if limit >= 0 && limit < effective {
		effective = limit
	}
	if effective == 0 {
		out.Truncated = true
		return out, nil
	}

	f, err := os.Open(full)
	if err != nil {
		return out, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return out, fmt.Errorf("failed to seek: %w", err)
		}
	}
	buf, err := io.ReadAll(io.LimitReader(f, effective))
	if err != nil {
		return out, fmt.Errorf("failed to read file: %w", err)
	}

	out.Truncated = offset+int64(len(buf)) < out.TotalBytes
	out.Content = strings.ToValidUTF8(string(buf), "\uFFFD")
	return out, nil
}

// readText reads a file from the start within max_read_bytes.
func (e *Executor) readText(rel string) (string, bool, error) {
	out, err := e.readRange(rel, 0, -1)
	if err != nil {
		return "", false, err
	}
	return out.Content, out.Truncated, nil
}

// readWhole reads a file for in-place editing. Files larger than
// max_read_bytes are refused so an edit never writes back a truncated view.
func (e *Executor) readWhole(rel string) (string, error) {
	text, truncated, err := e.readText(rel)
	if err != nil {
		return "", err
	}
	if truncated {
		return "", fmt.Errorf("file %s exceeds %d bytes; refusing to edit a truncated view", rel, e.limits.MaxReadBytes)
	}
	return text, nil
}

func (e *Executor) readFile(rel string, offset, limit int64) (ReadOutput, error) {
	return e.readRange(rel, offset, limit)
}

func (e *Executor) write(rel, content string) error {
	full, err := e.guard.ResolveWrite(rel)
	if err != nil {
		return err
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (e *Executor) writeFile(rel, content string) (map[string]interface{}, error) {
	if err := e.write(rel, content); err != nil {
		return nil, err
	}
	return map[string]interface{}{"path": rel, "written": len(content)}, nil
}

func (e *Executor) appendToFile(rel, content string) (map[string]interface{}, error) {
	full, err := e.guard.ResolveWrite(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return nil, fmt.Errorf("failed to append: %w", err)
	}
	return map[string]interface{}{"path": rel, "appended": len(content)}, nil
}

func (e *Executor) deleteFile(rel string) (map[string]interface{}, error) {
	if len(strings.Trim(rel, "./")) == 0 {
		return nil, fmt.Errorf("refusing to delete the workspace root")
	}
	full, err := e.guard.ResolveExisting(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}

	switch {
	case info.Mode().IsRegular():
		if err := os.Remove(full); err != nil {
			return nil, fmt.Errorf("failed to delete file: %w", err)
		}
	case info.IsDir():
		d, err := os.Open(full)
		if err != nil {
			return nil, err
		}
		names, _ := d.Readdirnames(1)
		d.Close()
		if len(names) > 0 {
			return nil, fmt.Errorf("refusing to delete non-empty directory: %s", rel)
		}
		if err := os.Remove(full); err != nil {
			return nil, fmt.Errorf("failed to delete directory: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported path type: %s", rel)
	}
	return map[string]interface{}{"path": rel, "deleted": true}, nil
}

func (e *Executor) renameFile(oldRel, newRel string) (map[string]interface{}, error) {
	src, err := e.guard.ResolveExisting(oldRel)
	if err != nil {
		return nil, err
	}
	dst, err := e.guard.ResolveWrite(newRel)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(src, dst); err != nil {
		return nil, fmt.Errorf("failed to rename: %w", err)
	}
	return map[string]interface{}{"old_path": oldRel, "new_path": newRel, "renamed": true}, nil
}

func (e *Executor) createDirectory(rel string) (map[string]interface{}, error) {
	if _, err := e.guard.EnsureDir(rel); err != nil {
		return nil, err
	}
	return map[string]interface{}{"path": rel, "created": true}, nil
}
