package connection

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/nerrad567/vega-nmos-core/internal/infrastructure/database"
	_ "github.com/nerrad567/vega-nmos-core/migrations" // registers embedded migrations
)

func openHistory(t *testing.T) *SQLiteHistoryRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteHistoryRepository(db.DB)
}

func TestSQLiteHistory_AppendAndList(t *testing.T) {
	repo := openHistory(t)
	ctx := t.Context()

	entries := []HistoryEntry{
		{ReceiverID: "r1", SenderID: "s1", Operation: OpConnect, Status: StatusActive, ControlURL: "http://h/conn/v1.1", HTTPStatus: 200, TransportParams: []byte(`[{"destination_port":5004}]`), CreatedAt: testNow},
		{ReceiverID: "r1", Operation: OpDisconnect, Status: StatusError, HTTPStatus: 500, Error: "boom", CreatedAt: testNow.Add(time.Minute)},
		{ReceiverID: "r2", SenderID: "s1", Operation: OpConnect, Status: StatusActive, CreatedAt: testNow},
	}
	for _, e := range entries {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := repo.ListByReceiver(ctx, "r1", 0)
	if err != nil {
		t.Fatalf("ListByReceiver() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListByReceiver() = %d entries, want 2", len(got))
	}

	newest, oldest := got[0], got[1]
	if newest.Operation != OpDisconnect || newest.Status != StatusError || newest.Error != "boom" || newest.HTTPStatus != 500 {
		t.Errorf("newest = %+v", newest)
	}
	if newest.SenderID != "" || newest.TransportParams != nil {
		t.Errorf("newest carries unset optional fields: %+v", newest)
	}
	if oldest.SenderID != "s1" || oldest.ControlURL != "http://h/conn/v1.1" {
		t.Errorf("oldest = %+v", oldest)
	}
	if string(oldest.TransportParams) != `[{"destination_port":5004}]` {
		t.Errorf("oldest transport params = %s", oldest.TransportParams)
	}
	if !oldest.CreatedAt.Equal(testNow) {
		t.Errorf("oldest CreatedAt = %v, want %v", oldest.CreatedAt, testNow)
	}
}

func TestSQLiteHistory_Limit(t *testing.T) {
	repo := openHistory(t)
	ctx := t.Context()

	for i := range 5 {
		e := HistoryEntry{ReceiverID: "r1", Operation: OpQuery, Status: StatusUnknown, CreatedAt: testNow.Add(time.Duration(i) * time.Second)}
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := repo.ListByReceiver(ctx, "r1", 3)
	if err != nil {
		t.Fatalf("ListByReceiver() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("ListByReceiver(limit 3) = %d entries", len(got))
	}
}

func TestSQLiteHistory_Validation(t *testing.T) {
	repo := openHistory(t)

	if err := repo.Append(t.Context(), HistoryEntry{Operation: OpConnect, Status: StatusActive}); !errors.Is(err, ErrReceiverRequired) {
		t.Errorf("Append() without receiver error = %v, want ErrReceiverRequired", err)
	}
	if _, err := repo.ListByReceiver(t.Context(), "", 10); !errors.Is(err, ErrReceiverRequired) {
		t.Errorf("ListByReceiver(\"\") error = %v, want ErrReceiverRequired", err)
	}
	if err := repo.Append(t.Context(), HistoryEntry{ReceiverID: "r1", Operation: "teleport", Status: StatusActive}); err == nil {
		t.Error("Append() accepted an unknown operation")
	}
}

func TestSQLiteHistory_Prune(t *testing.T) {
	repo := openHistory(t)
	ctx := t.Context()

	for _, at := range []time.Time{testNow.Add(-48 * time.Hour), testNow.Add(-time.Hour), testNow} {
		if err := repo.Append(ctx, HistoryEntry{ReceiverID: "r1", Operation: OpConnect, Status: StatusActive, CreatedAt: at}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, testNow.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() removed %d, want 1", n)
	}

	got, _ := repo.ListByReceiver(ctx, "r1", 0)
	if len(got) != 2 {
		t.Errorf("entries after prune = %d, want 2", len(got))
	}
}

func TestOrchestrator_RecordsHistory(t *testing.T) {
	repo := openHistory(t)
	f := newFixture(t, repo)

	if _, err := f.orch.Connect(t.Context(), "s1", "r1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	f.device.patchStatus = http.StatusConflict
	if _, err := f.orch.Disconnect(t.Context(), "r1"); err == nil {
		t.Fatal("Disconnect() succeeded, want upstream error")
	}

	got, err := f.orch.History(t.Context(), "r1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("History() = %d entries, want 2", len(got))
	}

	// Both entries share the fake clock's timestamp; id breaks the tie.
	if got[0].Operation != OpDisconnect || got[0].Status != StatusError || got[0].HTTPStatus != http.StatusConflict {
		t.Errorf("latest entry = %+v, want failed disconnect", got[0])
	}
	if got[1].Operation != OpConnect || got[1].Status != StatusActive || got[1].ControlURL != f.server.URL+"/conn/v1.1" {
		t.Errorf("first entry = %+v, want active connect", got[1])
	}
}

func TestOrchestrator_HistoryWithoutRepository(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.orch.History(t.Context(), "r1", 10)
	if err != nil || len(got) != 0 {
		t.Errorf("History() = %v, %v; want empty", got, err)
	}
}
