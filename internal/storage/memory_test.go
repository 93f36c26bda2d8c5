package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestMemoryChannelStoreLifecycle(t *testing.T) {
	store := NewMemoryChannelStore()
	channel := &models.Channel{
		ID:          uuid.NewString(),
		DisplayName: "general",
		Topic:       "project chat",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := store.Create(context.Background(), channel); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(context.Background(), channel); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("Create() duplicate error = %v, want ErrAlreadyExists", err)
	}

	got, err := store.Get(context.Background(), channel.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DisplayName != "general" {
		t.Fatalf("Get() display_name = %q", got.DisplayName)
	}

	byName, err := store.GetByDisplayName(context.Background(), "general")
	if err != nil || byName.ID != channel.ID {
		t.Fatalf("GetByDisplayName() = %v, %v", byName, err)
	}

	channel.Topic = "updated topic"
	if err := store.Update(context.Background(), channel); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	list, total, err := store.List(context.Background(), false, 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("List() expected 1, got %d/%d", len(list), total)
	}

	if err := store.Archive(context.Background(), channel.ID); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	list, total, err = store.List(context.Background(), false, 10, 0)
	if err != nil {
		t.Fatalf("List() after archive error = %v", err)
	}
	if total != 0 || len(list) != 0 {
		t.Fatalf("List() should exclude archived channels by default, got %d/%d", len(list), total)
	}
}

func TestMemoryAgentStoreLifecycle(t *testing.T) {
	store := NewMemoryAgentStore()
	agent := &models.Agent{
		ID:     uuid.NewString(),
		Handle: "@backend",
		Kind:   models.AgentKindBackend,
		Config: AgentConfigFixture(),
		Active: true,
		Persona: models.AgentPersona{
			Role: "Backend engineer",
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := store.Create(context.Background(), agent); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.Get(context.Background(), agent.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Handle != agent.Handle {
		t.Fatalf("Get() handle = %q", got.Handle)
	}

	byHandle, err := store.GetByHandle(context.Background(), "@backend")
	if err != nil || byHandle.ID != agent.ID {
		t.Fatalf("GetByHandle() = %v, %v", byHandle, err)
	}

	dup := &models.Agent{ID: uuid.NewString(), Handle: "@backend", Active: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := store.Create(context.Background(), dup); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("Create() duplicate active handle error = %v, want ErrAlreadyExists", err)
	}

	agent.Persona.Role = "Senior backend engineer"
	if err := store.Update(context.Background(), agent); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	list, total, err := store.List(context.Background(), true, 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("List() expected 1, got %d/%d", len(list), total)
	}

	if err := store.Delete(context.Background(), agent.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(context.Background(), agent.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryAgentTemplateStoreImmutability(t *testing.T) {
	store := NewMemoryAgentTemplateStore()
	tmpl := &models.AgentTemplate{
		ID:        uuid.NewString(),
		Type:      models.TemplateTypeDefault,
		Domain:    "engineering",
		Handle:    "@backend-template",
		Kind:      models.AgentKindBackend,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.Create(context.Background(), tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tmpl.Domain = "platform"
	if err := store.Update(context.Background(), tmpl); !errors.Is(err, ErrImmutable) {
		t.Fatalf("Update() on default template error = %v, want ErrImmutable", err)
	}
	if err := store.Delete(context.Background(), tmpl.ID); !errors.Is(err, ErrImmutable) {
		t.Fatalf("Delete() on default template error = %v, want ErrImmutable", err)
	}

	custom := &models.AgentTemplate{
		ID:        uuid.NewString(),
		Type:      models.TemplateTypeCustom,
		Domain:    "engineering",
		Handle:    "@custom-template",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.Create(context.Background(), custom); err != nil {
		t.Fatalf("Create() custom error = %v", err)
	}
	custom.Domain = "platform"
	if err := store.Update(context.Background(), custom); err != nil {
		t.Fatalf("Update() custom template error = %v", err)
	}

	list, total, err := store.List(context.Background(), "platform", 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("List() expected 1, got %d/%d", len(list), total)
	}

	if err := store.Delete(context.Background(), custom.ID); err != nil {
		t.Fatalf("Delete() custom template error = %v", err)
	}
}

func TestMemoryChatMessageStorePlaceholderReplace(t *testing.T) {
	store := NewMemoryChatMessageStore()
	msg := &models.ChatMessage{
		ID:         uuid.NewString(),
		ChannelID:  "chan-1",
		AuthorKind: models.AuthorKindAgent,
		Metadata:   models.ChatMetadata{Streaming: true},
		CreatedAt:  time.Now(),
	}
	if err := store.Append(context.Background(), msg); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := store.Get(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Placeholder() {
		t.Fatalf("expected streaming message to be a placeholder")
	}

	msg.Content = "final answer"
	msg.Metadata.Streaming = false
	if err := store.Replace(context.Background(), msg); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	got, err = store.Get(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("Get() after replace error = %v", err)
	}
	if got.Placeholder() {
		t.Fatalf("expected replaced message to no longer be a placeholder")
	}
	if got.Content != "final answer" {
		t.Fatalf("Content = %q, want %q", got.Content, "final answer")
	}

	list, err := store.ListByChannel(context.Background(), "chan-1", 10, 0)
	if err != nil {
		t.Fatalf("ListByChannel() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListByChannel() expected 1, got %d", len(list))
	}
}

func TestMemoryWorkflowStoreLifecycle(t *testing.T) {
	store := NewMemoryWorkflowStore()
	wf := &models.Workflow{
		ID:          uuid.NewString(),
		Description: "build a landing page",
		ChannelID:   "chan-1",
		Status:      models.WorkflowPlanning,
		CreatedAt:   time.Now(),
	}
	if err := store.Create(context.Background(), wf); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := store.UpdateStatus(context.Background(), wf.ID, models.WorkflowCompleted, ""); err == nil {
		t.Fatalf("UpdateStatus() should reject planning -> completed")
	}
	if err := store.UpdateStatus(context.Background(), wf.ID, models.WorkflowExecuting, ""); err != nil {
		t.Fatalf("UpdateStatus() planning -> executing error = %v", err)
	}

	root := &models.WorkflowTask{ID: uuid.NewString(), WorkflowID: wf.ID, OrderIndex: 0, Status: models.TaskReady, CreatedAt: time.Now()}
	child := &models.WorkflowTask{ID: uuid.NewString(), WorkflowID: wf.ID, OrderIndex: 1, ParentIDs: []string{root.ID}, Status: models.TaskPending, CreatedAt: time.Now()}
	if err := store.CreateTasks(context.Background(), []*models.WorkflowTask{root, child}); err != nil {
		t.Fatalf("CreateTasks() error = %v", err)
	}

	tasks, err := store.GetTasks(context.Background(), wf.ID)
	if err != nil {
		t.Fatalf("GetTasks() error = %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("GetTasks() expected 2, got %d", len(tasks))
	}

	root.Status = models.TaskCompleted
	if err := store.UpdateTask(context.Background(), root); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}

	if err := store.UpdateStatus(context.Background(), wf.ID, models.WorkflowCompleted, ""); err != nil {
		t.Fatalf("UpdateStatus() executing -> completed error = %v", err)
	}
	if err := store.UpdateStatus(context.Background(), wf.ID, models.WorkflowFailed, "boom"); !errors.Is(err, ErrImmutable) {
		t.Fatalf("UpdateStatus() on terminal workflow error = %v, want ErrImmutable", err)
	}
}

// AgentConfigFixture returns a minimal valid agent configuration for tests.
func AgentConfigFixture() models.AgentConfig {
	return models.AgentConfig{
		Provider: "anthropic",
		Model:    "claude-sonnet-4",
	}
}
