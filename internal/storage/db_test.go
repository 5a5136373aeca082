package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "relay.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTransferRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	created := time.UnixMilli(time.Now().UnixMilli())

	req := domain.TransferRequest{
		ID:         "01HZX",
		SenderID:   "alice",
		ReceiverID: "bob",
		Payload:    domain.Payload{Kind: domain.PayloadVideo, Name: "clip.mp4", URL: "https://files.example/clip.mp4", Size: 1 << 20, MIME: "video/mp4"},
		Status:     domain.TransferPending,
		CreatedAt:  created,
	}
	if err := db.CreateTransfer(ctx, req); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetTransfer(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Payload != req.Payload || got.SenderID != "alice" || !got.CreatedAt.Equal(created) || !got.ResolvedAt.IsZero() {
		t.Fatalf("GetTransfer = %+v, want %+v", got, req)
	}

	pending, err := db.PendingFor(ctx, "bob")
	if err != nil || len(pending) != 1 {
		t.Fatalf("PendingFor = %v, %v", pending, err)
	}

	if err := db.ResolveTransfer(ctx, req.ID, domain.TransferAccepted, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := db.ResolveTransfer(ctx, req.ID, domain.TransferDeclined, time.Now()); !errors.Is(err, core.ErrNotPending) {
		t.Fatalf("second resolve = %v, want ErrNotPending", err)
	}
	got, _ = db.GetTransfer(ctx, req.ID)
	if got.Status != domain.TransferAccepted || got.ResolvedAt.IsZero() {
		t.Fatalf("resolved transfer = %+v", got)
	}
	if pending, _ := db.PendingFor(ctx, "bob"); len(pending) != 0 {
		t.Fatalf("pending after resolve = %v", pending)
	}
}

func TestTransferMissing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if _, err := db.GetTransfer(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("GetTransfer = %v, want ErrNotFound", err)
	}
	if err := db.ResolveTransfer(ctx, "nope", domain.TransferAccepted, time.Now()); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("ResolveTransfer = %v, want ErrNotFound", err)
	}
}

func TestPresenceStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.LoadStatus(ctx, "alice"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("LoadStatus = %v, want ErrNotFound", err)
	}
	if err := db.SaveStatus(ctx, "alice", domain.StatusAway, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveStatus(ctx, "alice", domain.StatusDoNotDisturb, time.Now()); err != nil {
		t.Fatal(err)
	}
	got, err := db.LoadStatus(ctx, "alice")
	if err != nil || got != domain.StatusDoNotDisturb {
		t.Fatalf("LoadStatus = %v, %v", got, err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SaveStatus(context.Background(), "alice", domain.StatusBusy, time.Now()); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if db.Path() != path {
		t.Fatalf("Path = %q", db.Path())
	}
	if got, err := db.LoadStatus(context.Background(), "alice"); err != nil || got != domain.StatusBusy {
		t.Fatalf("LoadStatus after reopen = %v, %v", got, err)
	}
}
