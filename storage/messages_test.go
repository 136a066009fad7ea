package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"markestedt/clipsync/protocol"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndRecentMessages(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	at := time.Date(2024, 5, 1, 12, 30, 0, 123000000, time.UTC)

	sent := []protocol.Message{
		protocol.NewText("U1", "hello", at),
		protocol.NewRegisterSync("U2", "reg", 4, at.Add(time.Second)),
		protocol.NewImage("U1", "data:image/png;base64,AAAA", at.Add(2*time.Second)),
	}
	for _, m := range sent {
		id, err := db.SaveMessage(ctx, "demo", m)
		if err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
		if len(id) != 26 {
			t.Errorf("expected a ULID, got %q", id)
		}
	}
	if _, err := db.SaveMessage(ctx, "other", protocol.NewText("U3", "elsewhere", at)); err != nil {
		t.Fatal(err)
	}

	got, err := db.RecentMessages(ctx, "demo", 10)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(got) != len(sent) {
		t.Fatalf("expected %d messages, got %d", len(sent), len(got))
	}
	for i := range sent {
		if got[i].Kind != sent[i].Kind || got[i].Content != sent[i].Content || got[i].OriginID != sent[i].OriginID {
			t.Errorf("message %d = %+v, want %+v", i, got[i], sent[i])
		}
		if !got[i].SentAt.Equal(sent[i].SentAt) {
			t.Errorf("message %d timestamp = %v, want %v", i, got[i].SentAt, sent[i].SentAt)
		}
	}
	if got[0].HasRegister() || got[2].HasRegister() {
		t.Error("plain messages should not carry a register index")
	}
	if !got[1].HasRegister() || *got[1].RegisterIndex != 4 {
		t.Errorf("register index lost: %v", got[1].RegisterIndex)
	}
}

func TestRecentMessagesLimitKeepsNewest(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	at := time.Now()

	for i := 0; i < 5; i++ {
		if _, err := db.SaveMessage(ctx, "demo", protocol.NewText("U1", fmt.Sprintf("m%d", i), at)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.RecentMessages(ctx, "demo", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Content != "m3" || got[1].Content != "m4" {
		t.Errorf("expected [m3 m4], got %+v", got)
	}

	empty, err := db.RecentMessages(ctx, "nobody", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no history for unknown room, got %d", len(empty))
	}
}

func TestPruneRoom(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	at := time.Now()

	for i := 0; i < 4; i++ {
		db.SaveMessage(ctx, "demo", protocol.NewText("U1", fmt.Sprintf("m%d", i), at))
	}
	db.SaveMessage(ctx, "other", protocol.NewText("U1", "keep me", at))

	n, err := db.PruneRoom(ctx, "demo", 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("pruned %d rows, want 3", n)
	}

	got, _ := db.RecentMessages(ctx, "demo", 10)
	if len(got) != 1 || got[0].Content != "m3" {
		t.Errorf("expected only m3 left, got %+v", got)
	}
	if other, _ := db.RecentMessages(ctx, "other", 10); len(other) != 1 {
		t.Error("pruning must not touch other rooms")
	}
}

func TestRoomStats(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	at := time.Now()

	db.SaveMessage(ctx, "demo", protocol.NewText("U1", "a", at))
	db.SaveMessage(ctx, "demo", protocol.NewRegisterSync("U2", "b", 0, at))
	db.SaveMessage(ctx, "demo", protocol.NewImage("U2", "data:image/png;base64,AAAA", at))
	db.SaveMessage(ctx, "quiet", protocol.NewText("U3", "c", at))

	stats, err := db.GetRoomStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(stats))
	}

	demo := stats[0]
	if demo.Room != "demo" || demo.Messages != 3 || demo.Images != 1 || demo.RegisterSyncs != 1 || demo.Users != 2 {
		t.Errorf("unexpected demo stats %+v", demo)
	}

	total, err := db.GetMessageCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
}

func TestOpenInMemory(t *testing.T) {
	db, err := Open(MemoryPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SaveMessage(context.Background(), "demo", protocol.NewText("U1", "x", time.Now())); err != nil {
		t.Fatalf("in-memory database should keep its schema: %v", err)
	}
}
