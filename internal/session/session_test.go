package session

import (
	"os"
	"strings"
	"testing"
)

func TestAddEvent_Sequencing(t *testing.T) {
	sess := New("exec-1", "team-1", "roundtable", "Bridges")

	first := sess.AddEvent(Event{Type: EventStatus, Content: "started"})
	second := sess.AddEvent(Event{Type: EventOpinion, Agent: "Economist"})
	if first.SeqID != 1 || second.SeqID != 2 {
		t.Fatalf("seq = %d, %d", first.SeqID, second.SeqID)
	}
	if first.Timestamp.IsZero() {
		t.Error("timestamp should be filled")
	}

	// Externally sequenced events keep their number and move the counter.
	ext := sess.AddEvent(Event{SeqID: 10, Type: EventStatus})
	if ext.SeqID != 10 || sess.CurrentSeqID() != 10 {
		t.Errorf("external seq = %d, counter = %d", ext.SeqID, sess.CurrentSeqID())
	}
	next := sess.AddEvent(Event{Type: EventStatus})
	if next.SeqID != 11 {
		t.Errorf("next seq = %d", next.SeqID)
	}

	// A stale number is replaced rather than going backwards.
	stale := sess.AddEvent(Event{SeqID: 3, Type: EventStatus})
	if stale.SeqID != 12 {
		t.Errorf("stale seq = %d", stale.SeqID)
	}

	if got := sess.EventsOfType(EventOpinion); len(got) != 1 || got[0].Agent != "Economist" {
		t.Errorf("opinions = %+v", got)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store error: %v", err)
	}

	sess := New("exec-1", "team-1", "debate", "Tabs or spaces")
	sess.TeamName = "Style Council"
	ok := false
	sess.AddEvent(Event{Type: EventUser, Content: "Tabs or spaces", Round: 1})
	sess.AddEvent(Event{Type: EventToolResult, Tool: "read_file", Success: &ok, Error: "path escapes sandbox: ../x"})
	sess.Status = StatusCompleted
	sess.Summary = "Spaces win."
	sess.Error = ""

	if err := store.Save(sess); err != nil {
		t.Fatalf("save error: %v", err)
	}

	loaded, err := store.Load("exec-1")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if loaded.TeamName != "Style Council" || loaded.Mode != "debate" || loaded.Topic != "Tabs or spaces" {
		t.Errorf("header = %+v", loaded)
	}
	if loaded.Status != StatusCompleted || loaded.Summary != "Spaces win." {
		t.Errorf("footer status=%s summary=%s", loaded.Status, loaded.Summary)
	}
	if len(loaded.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(loaded.Events))
	}
	if loaded.Events[1].Error != "path escapes sandbox: ../x" {
		t.Errorf("event error lost: %+v", loaded.Events[1])
	}
	if loaded.Events[1].Success == nil || *loaded.Events[1].Success {
		t.Error("success flag lost")
	}
	if loaded.CurrentSeqID() != 2 {
		t.Errorf("sequence counter not restored: %d", loaded.CurrentSeqID())
	}
}

func TestFileStore_AppendEvent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	sess := New("exec-2", "team", "pipeline", "Haiku")

	for _, content := range []string{"a", "b", "c"} {
		evt := sess.AddEvent(Event{Type: EventOpinion, Content: content})
		if err := store.AppendEvent(sess, evt); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	data, err := os.ReadFile(store.Path("exec-2"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 || !strings.Contains(lines[0], `"_type":"header"`) {
		t.Fatalf("unexpected transcript:\n%s", data)
	}

	loaded, err := store.Load("exec-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Events) != 3 || loaded.Events[2].Content != "c" || loaded.Topic != "Haiku" {
		t.Errorf("loaded %+v", loaded)
	}

	// A full save after appends compacts the file; a later footer wins.
	sess.Status = StatusPaused
	if err := store.Save(sess); err != nil {
		t.Fatal(err)
	}
	evt := sess.AddEvent(Event{Type: EventStatus, Content: "resumed"})
	if err := store.AppendEvent(sess, evt); err != nil {
		t.Fatal(err)
	}
	loaded, err = store.Load("exec-2")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != StatusPaused || len(loaded.Events) != 4 {
		t.Errorf("status %s events %d", loaded.Status, len(loaded.Events))
	}
}

func TestFileStore_ListDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"one", "two"} {
		if err := store.Save(New(id, "t", "roundtable", "x")); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := store.List()
	if err != nil || len(ids) != 2 {
		t.Fatalf("list = %v, %v", ids, err)
	}
	if err := store.Delete("one"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("one"); err != nil {
		t.Errorf("deleting a missing transcript should succeed: %v", err)
	}
	if ids, _ := store.List(); len(ids) != 1 || ids[0] != "two" {
		t.Errorf("after delete: %v", ids)
	}
}

func TestParse_BadLine(t *testing.T) {
	if _, err := Parse(strings.NewReader("{\"_type\":\"header\"}\nnot json\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestParse_DropsTornLastLine(t *testing.T) {
	input := "{\"_type\":\"header\",\"id\":\"x\"}\n" +
		"{\"_type\":\"event\",\"seq\":1,\"type\":\"status\"}\n" +
		"{\"_type\":\"event\",\"seq\":2,\"ty"
	sess, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(sess.Events) != 1 || sess.CurrentSeqID() != 1 {
		t.Errorf("events = %+v", sess.Events)
	}

	// A terminated bad line is still an error.
	if _, err := Parse(strings.NewReader(input + "\n")); err == nil {
		t.Error("expected parse error for a complete bad line")
	}
}

func TestFileStore_AppendAfterTornWrite(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sess := New("exec-3", "team", "debate", "Tabs")
	evt := sess.AddEvent(Event{Type: EventStatus, Content: "running"})
	if err := store.AppendEvent(sess, evt); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(store.Path("exec-3"), os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"_type":"event","seq":2,"con`)
	f.Close()

	evt = sess.AddEvent(Event{Type: EventOpinion, Content: "spaces"})
	if err := store.AppendEvent(sess, evt); err != nil {
		t.Fatal(err)
	}
	loaded, err := store.Load("exec-3")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Events) != 2 || loaded.Events[1].Content != "spaces" {
		t.Errorf("events = %+v", loaded.Events)
	}
}

func TestFileStore_SetAside(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(New("bad", "t", "roundtable", "x")); err != nil {
		t.Fatal(err)
	}
	aside, err := store.SetAside("bad")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(aside); err != nil {
		t.Errorf("moved file missing: %v", err)
	}
	if ids, _ := store.List(); len(ids) != 0 {
		t.Errorf("set-aside transcript still listed: %v", ids)
	}
}
