package storage

import (
	"context"
	"errors"

	"github.com/haasonsaas/nexus/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrImmutable     = errors.New("immutable")
)

// ChannelStore persists Channel records.
type ChannelStore interface {
	Create(ctx context.Context, channel *models.Channel) error
	Get(ctx context.Context, id string) (*models.Channel, error)
	GetByDisplayName(ctx context.Context, displayName string) (*models.Channel, error)
	List(ctx context.Context, includeArchived bool, limit, offset int) ([]*models.Channel, int, error)
	Update(ctx context.Context, channel *models.Channel) error
	Archive(ctx context.Context, id string) error
}

// AgentStore persists Agent configurations.
type AgentStore interface {
	Create(ctx context.Context, agent *models.Agent) error
	Get(ctx context.Context, id string) (*models.Agent, error)
	GetByHandle(ctx context.Context, handle string) (*models.Agent, error)
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*models.Agent, int, error)
	Update(ctx context.Context, agent *models.Agent) error
	Delete(ctx context.Context, id string) error
}

// AgentTemplateStore persists AgentTemplate blueprints. Templates of
// models.TemplateTypeDefault are immutable; Update/Delete return ErrImmutable.
type AgentTemplateStore interface {
	Create(ctx context.Context, tmpl *models.AgentTemplate) error
	Get(ctx context.Context, id string) (*models.AgentTemplate, error)
	List(ctx context.Context, domain string, limit, offset int) ([]*models.AgentTemplate, int, error)
	Update(ctx context.Context, tmpl *models.AgentTemplate) error
	Delete(ctx context.Context, id string) error
}

// ChatMessageStore persists channel-facing chat messages (distinct from the
// agent runtime's internal LLM-turn Message, which sessions.Store owns).
type ChatMessageStore interface {
	Append(ctx context.Context, msg *models.ChatMessage) error
	Get(ctx context.Context, id string) (*models.ChatMessage, error)
	// Replace overwrites a streaming placeholder with its final content.
	Replace(ctx context.Context, msg *models.ChatMessage) error
	ListByChannel(ctx context.Context, channelID string, limit, offset int) ([]*models.ChatMessage, error)
}

// WorkflowStore persists Workflow records and their task DAGs.
type WorkflowStore interface {
	Create(ctx context.Context, wf *models.Workflow) error
	Get(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context, channelID string, limit, offset int) ([]*models.Workflow, int, error)
	UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, errMsg string) error

	CreateTasks(ctx context.Context, tasks []*models.WorkflowTask) error
	GetTasks(ctx context.Context, workflowID string) ([]*models.WorkflowTask, error)
	UpdateTask(ctx context.Context, task *models.WorkflowTask) error
}

// StoreSet groups storage dependencies.
type StoreSet struct {
	Channels  ChannelStore
	Agents    AgentStore
	Templates AgentTemplateStore
	Messages  ChatMessageStore
	Workflows WorkflowStore
	closer    func() error
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
