package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/loykin/vmixpanel/internal/history"
)

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()

	put := history.NewEvent(history.EventPut, "sponsors", "sponsors.json", 21, nil)
	if err := sink.Send(ctx, put); err != nil {
		t.Fatalf("Failed to send put event: %v", err)
	}
	failed := history.NewEvent(history.EventPut, "sponsors", "sponsors.json", 21, errors.New("busy"))
	if err := sink.Send(ctx, failed); err != nil {
		t.Fatalf("Failed to send failed event: %v", err)
	}
	cleared := history.NewEvent(history.EventClear, "rloverlay", "rloverlay.json", 2, nil)
	if err := sink.Send(ctx, cleared); err != nil {
		t.Fatalf("Failed to send clear event: %v", err)
	}

	n, err := sink.Count(ctx, "sponsors")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 sponsor events, got %d", n)
	}
	total, err := sink.Count(ctx, "")
	if err != nil {
		t.Fatalf("count all: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 events, got %d", total)
	}

	var errText sql.NullString
	if err := sink.db.QueryRowContext(ctx, `SELECT error FROM write_history WHERE id = ?`, failed.ID).Scan(&errText); err != nil {
		t.Fatalf("query failed event: %v", err)
	}
	if !errText.Valid || errText.String != "busy" {
		t.Fatalf("expected stored error text, got %+v", errText)
	}
	if err := sink.db.QueryRowContext(ctx, `SELECT error FROM write_history WHERE id = ?`, put.ID).Scan(&errText); err != nil {
		t.Fatalf("query put event: %v", err)
	}
	if errText.Valid {
		t.Fatalf("expected NULL error for successful write, got %q", errText.String)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	if err := sink.Send(context.Background(), history.NewEvent(history.EventPut, "RLT1DS", "RLT1DS.json", 2, nil)); err != nil {
		t.Fatalf("send: %v", err)
	}
	n, err := sink.Count(context.Background(), "RLT1DS")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 event, got %d (%v)", n, err)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
