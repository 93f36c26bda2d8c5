package frontend

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/hub"
	"github.com/haasonsaas/nexus/internal/storage"
	"github.com/haasonsaas/nexus/pkg/models"
)

func newTestFrontend(t *testing.T) (*Frontend, storage.StoreSet, *hub.Hub) {
	t.Helper()
	stores := storage.NewMemoryStores()
	h := hub.New(config.HubConfig{}, nil, nil)
	t.Cleanup(h.Close)
	f := New(stores.Channels, stores.Messages, stores.Agents, nil, nil, h, nil, nil)
	return f, stores, h
}

func TestMessageSend_PersistsAndBroadcastsWithoutMentions(t *testing.T) {
	f, stores, _ := newTestFrontend(t)
	ctx := context.Background()

	ch := &models.Channel{ID: "chan-1", DisplayName: "general", CreatedAt: time.Now()}
	if err := stores.Channels.Create(ctx, ch); err != nil {
		t.Fatalf("create channel: %v", err)
	}

	msg, err := f.MessageSend(ctx, "chan-1", "hello there", "alice")
	if err != nil {
		t.Fatalf("MessageSend: %v", err)
	}
	if msg.AuthorKind != models.AuthorKindUser {
		t.Fatalf("AuthorKind = %q, want user", msg.AuthorKind)
	}

	stored, err := stores.Messages.Get(ctx, msg.ID)
	if err != nil {
		t.Fatalf("Get persisted message: %v", err)
	}
	if stored.Content != "hello there" {
		t.Fatalf("stored content = %q", stored.Content)
	}
}

func TestMessageSend_RejectsMissingFields(t *testing.T) {
	f, _, _ := newTestFrontend(t)
	if _, err := f.MessageSend(context.Background(), "", "hi", "alice"); err == nil {
		t.Fatal("expected an error for missing channel_id")
	}
	if _, err := f.MessageSend(context.Background(), "chan-1", "", "alice"); err == nil {
		t.Fatal("expected an error for missing content")
	}
}

func TestResolveMentions_SkipsUnknownAndInactive(t *testing.T) {
	f, stores, _ := newTestFrontend(t)
	ctx := context.Background()

	active := &models.Agent{ID: "a1", Handle: "reviewer", Active: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	inactive := &models.Agent{ID: "a2", Handle: "retired", Active: false, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := stores.Agents.Create(ctx, active); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if err := stores.Agents.Create(ctx, inactive); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	got := f.resolveMentions(ctx, "hey @reviewer and @retired and @ghost, please look")
	if len(got) != 1 || got[0].Handle != "reviewer" {
		t.Fatalf("resolveMentions = %+v, want only reviewer", got)
	}
}

func TestResolveMentions_DedupesRepeatedHandle(t *testing.T) {
	f, stores, _ := newTestFrontend(t)
	ctx := context.Background()
	agentRec := &models.Agent{ID: "a1", Handle: "bot", Active: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := stores.Agents.Create(ctx, agentRec); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	got := f.resolveMentions(ctx, "@bot please help, @bot are you there?")
	if len(got) != 1 {
		t.Fatalf("expected 1 deduped mention, got %d", len(got))
	}
}

func TestClearContext_SetsMarkerAndBroadcasts(t *testing.T) {
	f, stores, _ := newTestFrontend(t)
	ctx := context.Background()
	ch := &models.Channel{ID: "chan-1", DisplayName: "general", CreatedAt: time.Now()}
	if err := stores.Channels.Create(ctx, ch); err != nil {
		t.Fatalf("create channel: %v", err)
	}

	if err := f.ClearContext(ctx, "chan-1"); err != nil {
		t.Fatalf("ClearContext: %v", err)
	}

	updated, err := stores.Channels.Get(ctx, "chan-1")
	if err != nil {
		t.Fatalf("Get channel: %v", err)
	}
	if updated.ContextClearedAt.IsZero() {
		t.Fatal("expected ContextClearedAt to be set")
	}
}
