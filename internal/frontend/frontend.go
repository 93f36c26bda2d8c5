// Package frontend implements the Request Frontend (C9): the inbound half
// of the wire protocol. It turns decoded client frames into persisted
// messages, agent runs and workflow lifecycle calls, serializing per
// channel and fanning mentions out to one runtime run per mentioned agent.
package frontend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/cache"
	"github.com/haasonsaas/nexus/internal/hub"
	"github.com/haasonsaas/nexus/internal/runtime"
	"github.com/haasonsaas/nexus/internal/storage"
	"github.com/haasonsaas/nexus/internal/workflow"
	"github.com/haasonsaas/nexus/pkg/models"
)

var mentionToken = regexp.MustCompile(`@([A-Za-z0-9_\-.]+)`)

// Frontend is the single entry point for every inbound client event.
type Frontend struct {
	channels storage.ChannelStore
	messages storage.ChatMessageStore
	agents   storage.AgentStore
	rt       *runtime.Runtime
	orch     *workflow.Orchestrator
	h        *hub.Hub
	c        *cache.Cache
	logger   *slog.Logger

	channelLocks sync.Map // channelID -> *sync.Mutex
}

// New builds a Frontend. c (the cache) may be nil (get_stats then omits
// cache counters).
func New(channels storage.ChannelStore, messages storage.ChatMessageStore, agents storage.AgentStore, rt *runtime.Runtime, orch *workflow.Orchestrator, h *hub.Hub, c *cache.Cache, logger *slog.Logger) *Frontend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Frontend{
		channels: channels,
		messages: messages,
		agents:   agents,
		rt:       rt,
		orch:     orch,
		h:        h,
		c:        c,
		logger:   logger.With("component", "request-frontend"),
	}
}

func (f *Frontend) channelLock(channelID string) *sync.Mutex {
	v, _ := f.channelLocks.LoadOrStore(channelID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// HandleInbound is the hub.InboundHandler every transport wires to a
// Frontend; it dispatches by event name and replies with an "error" event
// on validation/state failures rather than broadcasting anything.
func (f *Frontend) HandleInbound(sessionID string, frame hub.InboundFrame) {
	ctx := context.Background()

	switch frame.Event {
	case "message_send":
		var p messageSendPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			f.reportError(sessionID, frame.Event, err)
			return
		}
		if _, err := f.MessageSend(ctx, p.ChannelID, p.Content, p.AuthorName); err != nil {
			f.reportError(sessionID, frame.Event, err)
		}

	case "clear_context":
		var p struct {
			ChannelID string `json:"channel_id"`
		}
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			f.reportError(sessionID, frame.Event, err)
			return
		}
		if err := f.ClearContext(ctx, p.ChannelID); err != nil {
			f.reportError(sessionID, frame.Event, err)
		}

	case "workflow_plan":
		var p struct {
			Request   string `json:"request"`
			ChannelID string `json:"channel_id"`
		}
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			f.reportError(sessionID, frame.Event, err)
			return
		}
		wf, err := f.WorkflowPlan(ctx, p.Request, p.ChannelID)
		if err != nil {
			f.reportError(sessionID, frame.Event, err)
			return
		}
		if f.h != nil {
			f.h.Unicast(sessionID, "workflow_plan_result", map[string]any{"workflow_id": wf.ID})
		}

	case "workflow_start":
		var p struct {
			WorkflowID string `json:"workflow_id"`
		}
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			f.reportError(sessionID, frame.Event, err)
			return
		}
		if err := f.WorkflowStart(ctx, p.WorkflowID); err != nil {
			f.reportError(sessionID, frame.Event, err)
		}

	case "workflow_cancel":
		var p struct {
			WorkflowID string `json:"workflow_id"`
		}
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			f.reportError(sessionID, frame.Event, err)
			return
		}
		if err := f.WorkflowCancel(ctx, p.WorkflowID); err != nil {
			f.reportError(sessionID, frame.Event, err)
		}

	case "get_stats":
		if f.h != nil {
			f.h.Unicast(sessionID, "stats", f.Stats())
		}

	default:
		f.logger.Debug("frontend: unrecognized inbound event", "event", frame.Event)
	}
}

type messageSendPayload struct {
	ChannelID  string `json:"channel_id"`
	Content    string `json:"content"`
	AuthorName string `json:"author_name"`
}

func (f *Frontend) reportError(sessionID, event string, err error) {
	f.logger.Warn("frontend: inbound event failed", "event", event, "error", err)
	if f.h != nil {
		f.h.Unicast(sessionID, "error", map[string]any{"source_event": event, "message": err.Error()})
	}
}

// MessageSend persists a user message, broadcasts it, and fans out one
// runtime run per @-mentioned, resolvable agent. Mentions are resolved
// before the message is persisted so the fan-out set is fixed at the
// moment of the broadcast; unresolved mentions are left as plain text.
func (f *Frontend) MessageSend(ctx context.Context, channelID, content, authorName string) (*models.ChatMessage, error) {
	if channelID == "" || content == "" {
		return nil, fmt.Errorf("frontend: channel_id and content are required")
	}

	mentioned := f.resolveMentions(ctx, content)

	lock := f.channelLock(channelID)
	lock.Lock()
	msg := &models.ChatMessage{
		ID:                uuid.New().String(),
		ChannelID:         channelID,
		AuthorKind:        models.AuthorKindUser,
		AuthorDisplayName: authorName,
		Content:           content,
		CreatedAt:         time.Now().UTC(),
	}
	err := f.messages.Append(ctx, msg)
	if err == nil {
		f.broadcast("message_new", chatMessagePayload(msg))
	}
	lock.Unlock()
	if err != nil {
		return nil, fmt.Errorf("frontend: persist message: %w", err)
	}

	if f.c != nil {
		f.c.Delete(ctx, "message_counts", channelID)
	}

	for _, agentRec := range mentioned {
		agentRec := agentRec
		go func() {
			chunks, err := f.rt.ProcessStreaming(context.WithoutCancel(ctx), content, runtime.RunContext{
				Agent:        agentRec,
				ChannelID:    channelID,
				InvokingName: authorName,
			})
			if err != nil {
				f.logger.Error("frontend: agent run failed to start", "agent", agentRec.Handle, "error", err)
				return
			}
			for range chunks {
				// runtime.Runtime already forwards chunks to the hub; the
				// frontend only needs to drain the channel to let it close.
			}
		}()
	}

	return msg, nil
}

// resolveMentions extracts @handle tokens from content and resolves each to
// an active Agent, skipping (not erroring on) unresolvable handles.
func (f *Frontend) resolveMentions(ctx context.Context, content string) []*models.Agent {
	matches := mentionToken.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var out []*models.Agent
	for _, m := range matches {
		handle := m[1]
		if seen[handle] {
			continue
		}
		seen[handle] = true
		agentRec, err := f.agents.GetByHandle(ctx, handle)
		if err != nil || !agentRec.Active {
			continue
		}
		out = append(out, agentRec)
	}
	return out
}

// ClearContext marks the channel's context boundary at now, excluding all
// prior messages from future prompt assembly, and broadcasts the marker.
func (f *Frontend) ClearContext(ctx context.Context, channelID string) error {
	ch, err := f.channels.Get(ctx, channelID)
	if err != nil {
		return fmt.Errorf("frontend: clear_context: %w", err)
	}
	ch.ContextClearedAt = time.Now().UTC()
	if err := f.channels.Update(ctx, ch); err != nil {
		return fmt.Errorf("frontend: clear_context: %w", err)
	}
	f.broadcast("context_cleared", map[string]any{"channel_id": channelID, "cleared_at": ch.ContextClearedAt.Format(time.RFC3339Nano)})
	return nil
}

// WorkflowPlan resolves the channel's orchestrator agent and delegates to
// the workflow orchestrator's blocking Plan call.
func (f *Frontend) WorkflowPlan(ctx context.Context, request, channelID string) (*models.Workflow, error) {
	orchestratorAgent, err := f.resolveOrchestrator(ctx)
	if err != nil {
		return nil, err
	}
	return f.orch.Plan(ctx, request, channelID, orchestratorAgent)
}

func (f *Frontend) resolveOrchestrator(ctx context.Context) (*models.Agent, error) {
	agents, _, err := f.agents.List(ctx, true, 50, 0)
	if err != nil {
		return nil, fmt.Errorf("frontend: list agents: %w", err)
	}
	for _, a := range agents {
		if a.Kind == models.AgentKindOrchestrator {
			return a, nil
		}
	}
	return nil, fmt.Errorf("frontend: no active orchestrator agent configured")
}

// WorkflowStart delegates to the orchestrator's Start call.
func (f *Frontend) WorkflowStart(ctx context.Context, workflowID string) error {
	return f.orch.Start(ctx, workflowID)
}

// WorkflowCancel delegates to the orchestrator's Cancel call.
func (f *Frontend) WorkflowCancel(ctx context.Context, workflowID string) error {
	return f.orch.Cancel(ctx, workflowID)
}

// Stats aggregates the process-wide counters get_stats reports.
func (f *Frontend) Stats() map[string]any {
	out := map[string]any{}
	if f.h != nil {
		out["hub"] = f.h.Stats()
	}
	if f.c != nil {
		out["cache"] = f.c.Stats()
	}
	return out
}

func (f *Frontend) broadcast(event string, payload any) {
	if f.h == nil {
		return
	}
	f.h.Broadcast(event, payload, hub.BroadcastOptions{Optimize: true})
}

func chatMessagePayload(m *models.ChatMessage) map[string]any {
	return map[string]any{
		"message_id":           m.ID,
		"channel_id":           m.ChannelID,
		"author_id":            m.AuthorID,
		"author_kind":          string(m.AuthorKind),
		"author_display_name":  m.AuthorDisplayName,
		"content":              m.Content,
		"metadata":             m.Metadata,
		"created_at":           m.CreatedAt.Format(time.RFC3339Nano),
	}
}
