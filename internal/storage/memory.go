package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/haasonsaas/nexus/pkg/models"
)

// MemoryChannelStore provides an in-memory ChannelStore.
type MemoryChannelStore struct {
	mu       sync.RWMutex
	channels map[string]*models.Channel
}

// NewMemoryChannelStore creates an in-memory channel store.
func NewMemoryChannelStore() *MemoryChannelStore {
	return &MemoryChannelStore{channels: make(map[string]*models.Channel)}
}

func (s *MemoryChannelStore) Create(ctx context.Context, channel *models.Channel) error {
	if channel == nil || channel.ID == "" {
		return fmt.Errorf("channel is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.channels[channel.ID]; exists {
		return ErrAlreadyExists
	}
	for _, c := range s.channels {
		if c.DisplayName == channel.DisplayName {
			return ErrAlreadyExists
		}
	}
	s.channels[channel.ID] = channel
	return nil
}

func (s *MemoryChannelStore) Get(ctx context.Context, id string) (*models.Channel, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ch, nil
}

func (s *MemoryChannelStore) GetByDisplayName(ctx context.Context, displayName string) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.channels {
		if c.DisplayName == displayName {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryChannelStore) List(ctx context.Context, includeArchived bool, limit, offset int) ([]*models.Channel, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channels := make([]*models.Channel, 0, len(s.channels))
	for _, c := range s.channels {
		if !includeArchived && c.Archived {
			continue
		}
		channels = append(channels, c)
	}
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].CreatedAt.After(channels[j].CreatedAt)
	})
	return paginate(channels, limit, offset), len(channels), nil
}

func (s *MemoryChannelStore) Update(ctx context.Context, channel *models.Channel) error {
	if channel == nil || channel.ID == "" {
		return fmt.Errorf("channel is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.channels[channel.ID]; !exists {
		return ErrNotFound
	}
	s.channels[channel.ID] = channel
	return nil
}

func (s *MemoryChannelStore) Archive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, exists := s.channels[id]
	if !exists {
		return ErrNotFound
	}
	ch.Archived = true
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset > len(items) {
		offset = len(items)
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// MemoryAgentStore provides an in-memory AgentStore.
type MemoryAgentStore struct {
	mu     sync.RWMutex
	agents map[string]*models.Agent
}

// NewMemoryAgentStore creates an in-memory agent store.
func NewMemoryAgentStore() *MemoryAgentStore {
	return &MemoryAgentStore{agents: make(map[string]*models.Agent)}
}

func (s *MemoryAgentStore) Create(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.ID == "" {
		return fmt.Errorf("agent is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[agent.ID]; exists {
		return ErrAlreadyExists
	}
	for _, a := range s.agents {
		if a.Active && a.Handle == agent.Handle {
			return ErrAlreadyExists
		}
	}
	s.agents[agent.ID] = agent
	return nil
}

func (s *MemoryAgentStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return agent, nil
}

func (s *MemoryAgentStore) GetByHandle(ctx context.Context, handle string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.Handle == handle {
			return a, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryAgentStore) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*models.Agent, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agents := make([]*models.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		if activeOnly && !agent.Active {
			continue
		}
		agents = append(agents, agent)
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].CreatedAt.After(agents[j].CreatedAt)
	})
	return paginate(agents, limit, offset), len(agents), nil
}

func (s *MemoryAgentStore) Update(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.ID == "" {
		return fmt.Errorf("agent is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[agent.ID]; !exists {
		return ErrNotFound
	}
	s.agents[agent.ID] = agent
	return nil
}

func (s *MemoryAgentStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[id]; !exists {
		return ErrNotFound
	}
	delete(s.agents, id)
	return nil
}

// MemoryAgentTemplateStore provides an in-memory AgentTemplateStore.
type MemoryAgentTemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*models.AgentTemplate
}

// NewMemoryAgentTemplateStore creates an in-memory template store.
func NewMemoryAgentTemplateStore() *MemoryAgentTemplateStore {
	return &MemoryAgentTemplateStore{templates: make(map[string]*models.AgentTemplate)}
}

func (s *MemoryAgentTemplateStore) Create(ctx context.Context, tmpl *models.AgentTemplate) error {
	if tmpl == nil || tmpl.ID == "" {
		return fmt.Errorf("template is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.templates[tmpl.ID]; exists {
		return ErrAlreadyExists
	}
	s.templates[tmpl.ID] = tmpl
	return nil
}

func (s *MemoryAgentTemplateStore) Get(ctx context.Context, id string) (*models.AgentTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return tmpl, nil
}

func (s *MemoryAgentTemplateStore) List(ctx context.Context, domain string, limit, offset int) ([]*models.AgentTemplate, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	templates := make([]*models.AgentTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		if domain != "" && t.Domain != domain {
			continue
		}
		templates = append(templates, t)
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})
	return paginate(templates, limit, offset), len(templates), nil
}

func (s *MemoryAgentTemplateStore) Update(ctx context.Context, tmpl *models.AgentTemplate) error {
	if tmpl == nil || tmpl.ID == "" {
		return fmt.Errorf("template is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.templates[tmpl.ID]
	if !exists {
		return ErrNotFound
	}
	if existing.Type == models.TemplateTypeDefault {
		return ErrImmutable
	}
	s.templates[tmpl.ID] = tmpl
	return nil
}

func (s *MemoryAgentTemplateStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.templates[id]
	if !exists {
		return ErrNotFound
	}
	if existing.Type == models.TemplateTypeDefault {
		return ErrImmutable
	}
	delete(s.templates, id)
	return nil
}

// MemoryChatMessageStore provides an in-memory ChatMessageStore.
type MemoryChatMessageStore struct {
	mu       sync.RWMutex
	messages map[string]*models.ChatMessage
	order    []string // insertion order, per-channel filtering done on read
}

// NewMemoryChatMessageStore creates an in-memory chat message store.
func NewMemoryChatMessageStore() *MemoryChatMessageStore {
	return &MemoryChatMessageStore{messages: make(map[string]*models.ChatMessage)}
}

func (s *MemoryChatMessageStore) Append(ctx context.Context, msg *models.ChatMessage) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; exists {
		return ErrAlreadyExists
	}
	s.messages[msg.ID] = msg
	s.order = append(s.order, msg.ID)
	return nil
}

func (s *MemoryChatMessageStore) Get(ctx context.Context, id string) (*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return msg, nil
}

func (s *MemoryChatMessageStore) Replace(ctx context.Context, msg *models.ChatMessage) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; !exists {
		return ErrNotFound
	}
	s.messages[msg.ID] = msg
	return nil
}

func (s *MemoryChatMessageStore) ListByChannel(ctx context.Context, channelID string, limit, offset int) ([]*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*models.ChatMessage, 0, len(s.order))
	for _, id := range s.order {
		msg := s.messages[id]
		if msg.ChannelID == channelID {
			matched = append(matched, msg)
		}
	}
	return paginate(matched, limit, offset), nil
}

// MemoryWorkflowStore provides an in-memory WorkflowStore.
type MemoryWorkflowStore struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	tasks     map[string][]*models.WorkflowTask // keyed by workflow ID
}

// NewMemoryWorkflowStore creates an in-memory workflow store.
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{
		workflows: make(map[string]*models.Workflow),
		tasks:     make(map[string][]*models.WorkflowTask),
	}
}

func (s *MemoryWorkflowStore) Create(ctx context.Context, wf *models.Workflow) error {
	if wf == nil || wf.ID == "" {
		return fmt.Errorf("workflow is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[wf.ID]; exists {
		return ErrAlreadyExists
	}
	s.workflows[wf.ID] = wf
	return nil
}

func (s *MemoryWorkflowStore) Get(ctx context.Context, id string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return wf, nil
}

func (s *MemoryWorkflowStore) List(ctx context.Context, channelID string, limit, offset int) ([]*models.Workflow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	workflows := make([]*models.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		if channelID != "" && wf.ChannelID != channelID {
			continue
		}
		workflows = append(workflows, wf)
	}
	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})
	return paginate(workflows, limit, offset), len(workflows), nil
}

func (s *MemoryWorkflowStore) UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, exists := s.workflows[id]
	if !exists {
		return ErrNotFound
	}
	if wf.Terminal() {
		return ErrImmutable
	}
	if !models.CanTransitionWorkflow(wf.Status, status) {
		return fmt.Errorf("invalid workflow transition %s -> %s", wf.Status, status)
	}
	wf.Status = status
	wf.Error = errMsg
	return nil
}

func (s *MemoryWorkflowStore) CreateTasks(ctx context.Context, tasks []*models.WorkflowTask) error {
	if len(tasks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	workflowID := tasks[0].WorkflowID
	s.tasks[workflowID] = append(s.tasks[workflowID], tasks...)
	return nil
}

func (s *MemoryWorkflowStore) GetTasks(ctx context.Context, workflowID string) ([]*models.WorkflowTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks, ok := s.tasks[workflowID]
	if !ok {
		return nil, nil
	}
	out := make([]*models.WorkflowTask, len(tasks))
	copy(out, tasks)
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (s *MemoryWorkflowStore) UpdateTask(ctx context.Context, task *models.WorkflowTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, ok := s.tasks[task.WorkflowID]
	if !ok {
		return ErrNotFound
	}
	for i, t := range tasks {
		if t.ID == task.ID {
			tasks[i] = task
			return nil
		}
	}
	return ErrNotFound
}

// NewMemoryStores constructs a StoreSet backed by memory.
func NewMemoryStores() StoreSet {
	return StoreSet{
		Channels:  NewMemoryChannelStore(),
		Agents:    NewMemoryAgentStore(),
		Templates: NewMemoryAgentTemplateStore(),
		Messages:  NewMemoryChatMessageStore(),
		Workflows: NewMemoryWorkflowStore(),
	}
}
