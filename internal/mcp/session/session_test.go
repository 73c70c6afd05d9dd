package session

import (
	"context"
	"fmt"
	"testing"
)

// --- Session creation ---

func TestNewSession_Initialized(t *testing.T) {
	sess := newSession("test-id")
	if sess.ID != "test-id" {
		t.Errorf("session ID should be 'test-id', got %q", sess.ID)
	}
	if sess.SeenTables == nil {
		t.Error("SeenTables should be initialized")
	}
	if sess.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

// --- MarkSeen / IsSeen ---

func TestMarkSeen_IsCaseInsensitive(t *testing.T) {
	sess := newSession("test")
	sess.MarkSeen("Sales.dbo.Orders", "HR.dbo.Employees")
	if !sess.IsSeen("sales.DBO.orders") {
		t.Error("table should be seen regardless of case")
	}
	if sess.SeenCount() != 2 {
		t.Errorf("expected 2 seen tables, got %d", sess.SeenCount())
	}
}

func TestIsSeen_NilMap(t *testing.T) {
	sess := &Session{}
	if sess.IsSeen("t") {
		t.Error("nil map should return false")
	}
}

func TestMarkSeen_NilMap(t *testing.T) {
	sess := &Session{}
	sess.MarkSeen("t")
	if !sess.IsSeen("t") {
		t.Error("MarkSeen should initialize the map")
	}
}

// --- Buffer ---

func TestSetBuffer_KeepsVendor(t *testing.T) {
	sess := newSession("test")
	sess.SetBuffer("SELECT 1", "postgres")
	sess.SetBuffer("SELECT 2", "")
	if sess.SQL != "SELECT 2" || sess.Vendor != "postgres" {
		t.Errorf("buffer = %q / %q", sess.SQL, sess.Vendor)
	}
}

// --- History ---

func TestAddHistory_Truncates(t *testing.T) {
	sess := newSession("test")
	for i := range maxHistory + 5 {
		sess.AddHistory(fmt.Sprintf("call %d", i))
	}
	if len(sess.History) != maxHistory {
		t.Fatalf("expected %d entries, got %d", maxHistory, len(sess.History))
	}
	if sess.History[0] != "call 5" {
		t.Errorf("oldest entry should be 'call 5', got %q", sess.History[0])
	}
}

// --- Memory store ---

func TestMemory_SaveAndLoad(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	sess, err := store.Load(ctx, "")
	if err != nil {
		t.Fatalf("load new session: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("auto-generated ID should not be empty")
	}
	sess.SetBuffer("SELECT * FROM t", "sqlserver")
	sess.MarkSeen("t")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Load(ctx, sess.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if loaded.SQL != "SELECT * FROM t" || loaded.Vendor != "sqlserver" || !loaded.IsSeen("t") {
		t.Errorf("session not preserved: %+v", loaded)
	}

	// the loaded copy is independent of the stored one
	loaded.SetBuffer("SELECT 2", "")
	again, _ := store.Load(ctx, sess.ID)
	if again.SQL != "SELECT * FROM t" {
		t.Errorf("stored session mutated: %q", again.SQL)
	}
}

var (
	_ Store = (*Manager)(nil)
	_ Store = (*Memory)(nil)
)
