package canvas

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func newTestManager(max int) *Manager {
	return NewManager(Config{
		MaxComponents: max,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestManagerArena(t *testing.T) {
	m := newTestManager(0)

	if got := m.Get("s1"); got != nil {
		t.Fatalf("Get() before create = %v, want nil", got)
	}

	first := m.GetOrCreate("s1")
	if first == nil {
		t.Fatal("GetOrCreate() returned nil")
	}
	if again := m.GetOrCreate("s1"); again != first {
		t.Error("GetOrCreate() made a second state for the same session")
	}
	if got := m.Get("s1"); got != first {
		t.Error("Get() did not return the created state")
	}

	other := m.GetOrCreate("s2")
	if other == first {
		t.Error("sessions share one state")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}

	if err := first.AddNode(makeNode("a")); err != nil {
		t.Fatalf("AddNode() error: %v", err)
	}
	if other.NodeCount() != 0 {
		t.Error("node leaked into the other session's canvas")
	}
}

func TestManagerRemove(t *testing.T) {
	m := newTestManager(0)
	st := m.GetOrCreate("s1")
	if err := st.AddNode(makeNode("a")); err != nil {
		t.Fatalf("AddNode() error: %v", err)
	}

	m.Remove("s1")
	if got := m.Get("s1"); got != nil {
		t.Fatalf("Get() after remove = %v, want nil", got)
	}

	fresh := m.GetOrCreate("s1")
	if fresh == st {
		t.Error("GetOrCreate() after remove returned the old state")
	}
	if fresh.NodeCount() != 0 {
		t.Errorf("fresh canvas has %d nodes, want 0", fresh.NodeCount())
	}

	m.Remove("never-existed")
}

func TestManagerAppliesComponentCap(t *testing.T) {
	m := newTestManager(1)
	st := m.GetOrCreate("s1")
	if st.MaxComponents() != 1 {
		t.Fatalf("MaxComponents() = %d, want 1", st.MaxComponents())
	}
	if err := st.AddNode(makeNode("a")); err != nil {
		t.Fatalf("AddNode(a) error: %v", err)
	}
	if err := st.AddNode(makeNode("b")); !errors.Is(err, ErrCanvasFull) {
		t.Fatalf("AddNode(b) = %v, want ErrCanvasFull", err)
	}
}

func TestManagerDefaultCap(t *testing.T) {
	m := NewManager(Config{})
	if got := m.GetOrCreate("s1").MaxComponents(); got != DefaultMaxComponents {
		t.Errorf("MaxComponents() = %d, want %d", got, DefaultMaxComponents)
	}
}
