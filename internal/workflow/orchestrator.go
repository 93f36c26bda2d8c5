// Package workflow implements the Workflow Orchestrator (C7): it turns a
// natural-language request into a DAG of agent tasks via the plan parser,
// then drives that DAG to completion with per-agent serialized execution,
// cascade-skip on failure, and cooperative cancellation.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/hub"
	"github.com/haasonsaas/nexus/internal/planparser"
	"github.com/haasonsaas/nexus/internal/runtime"
	"github.com/haasonsaas/nexus/internal/storage"
	"github.com/haasonsaas/nexus/pkg/models"
)

// ErrInvalidState is returned when an operation is attempted from a status
// that does not admit it (e.g. Start on an already-executing workflow).
var ErrInvalidState = errors.New("workflow: invalid state for requested operation")

// agentResolverFunc adapts a plain function to planparser.AgentResolver.
type agentResolverFunc func(handle string) (string, bool)

func (f agentResolverFunc) ResolveHandle(handle string) (string, bool) { return f(handle) }

// Orchestrator plans and executes workflows. It is constructed once at
// startup and held by reference; it carries no package-level state.
type Orchestrator struct {
	workflows storage.WorkflowStore
	agents    storage.AgentStore
	rt        *runtime.Runtime
	hub       *hub.Hub
	logger    *slog.Logger

	queues       *agentQueues
	sem          chan struct{}
	taskTimeout  time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New builds an Orchestrator from its dependencies.
func New(cfg config.WorkflowConfig, workflows storage.WorkflowStore, agents storage.AgentStore, rt *runtime.Runtime, h *hub.Hub, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrent := cfg.MaxConcurrentTasks
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	timeout := cfg.TaskTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Orchestrator{
		workflows:   workflows,
		agents:      agents,
		rt:          rt,
		hub:         h,
		logger:      logger.With("component", "workflow-orchestrator"),
		queues:      newAgentQueues(),
		sem:         make(chan struct{}, maxConcurrent),
		taskTimeout: timeout,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Plan blocks on a completion from orchestratorAgent, parses its plan text
// into a task DAG, and persists the resulting Workflow in planning status.
func (o *Orchestrator) Plan(ctx context.Context, requestText, channelID string, orchestratorAgent *models.Agent) (*models.Workflow, error) {
	wf := &models.Workflow{
		ID:             uuid.New().String(),
		Description:    requestText,
		OrchestratorID: orchestratorAgent.ID,
		ChannelID:      channelID,
		Status:         models.WorkflowPlanning,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.workflows.Create(ctx, wf); err != nil {
		return nil, fmt.Errorf("workflow: create: %w", err)
	}
	o.broadcast("workflow:created", map[string]any{"workflow_id": wf.ID, "channel_id": channelID})
	o.broadcast("workflow:planning", map[string]any{"workflow_id": wf.ID})

	planText, err := o.rt.Drive(ctx, requestText, runtime.RunContext{
		Agent:           orchestratorAgent,
		ChannelID:       channelID,
		TaskDescription: requestText,
	})
	if err != nil {
		o.failPlan(ctx, wf, err.Error())
		return nil, err
	}

	resolver := agentResolverFunc(func(handle string) (string, bool) {
		a, err := o.agents.GetByHandle(ctx, strings.TrimPrefix(handle, "@"))
		if err != nil {
			return "", false
		}
		return a.ID, true
	})

	plan, err := planparser.Parse(planText, resolver)
	if err != nil {
		o.failPlan(ctx, wf, err.Error())
		return nil, err
	}
	wf.Plan = *plan

	tasks, err := tasksFromPlan(wf.ID, plan)
	if err != nil {
		o.failPlan(ctx, wf, err.Error())
		return nil, err
	}
	if err := o.workflows.CreateTasks(ctx, tasks); err != nil {
		o.failPlan(ctx, wf, err.Error())
		return nil, fmt.Errorf("workflow: create tasks: %w", err)
	}

	o.broadcast("workflow:plan_ready", map[string]any{"workflow_id": wf.ID, "task_count": len(tasks)})
	return wf, nil
}

func (o *Orchestrator) failPlan(ctx context.Context, wf *models.Workflow, errMsg string) {
	_ = o.workflows.UpdateStatus(ctx, wf.ID, models.WorkflowFailed, errMsg)
	o.broadcast("workflow:failed", map[string]any{"workflow_id": wf.ID, "error": errMsg})
}

// tasksFromPlan materializes fresh WorkflowTask ids for a parsed plan and
// resolves each PlannedTask.DependsOn index into the corresponding task id.
func tasksFromPlan(workflowID string, plan *models.WorkflowPlan) ([]*models.WorkflowTask, error) {
	ids := make([]string, len(plan.Tasks))
	for i := range plan.Tasks {
		ids[i] = uuid.New().String()
	}
	tasks := make([]*models.WorkflowTask, len(plan.Tasks))
	now := time.Now().UTC()
	for i, pt := range plan.Tasks {
		parents := make([]string, 0, len(pt.DependsOn))
		for _, dep := range pt.DependsOn {
			if dep < 0 || dep >= len(ids) {
				return nil, fmt.Errorf("workflow: dependency index %d out of range", dep)
			}
			parents = append(parents, ids[dep])
		}
		tasks[i] = &models.WorkflowTask{
			ID:          ids[i],
			WorkflowID:  workflowID,
			Description: pt.Description,
			AgentID:     pt.AgentHandle, // resolved to an agent id by planparser
			OrderIndex:  pt.Index,
			ParentIDs:   parents,
			Status:      models.TaskPending,
			CreatedAt:   now,
		}
	}
	return tasks, nil
}

// Start transitions a planning workflow to executing and begins driving its
// DAG asynchronously.
func (o *Orchestrator) Start(ctx context.Context, workflowID string) error {
	wf, err := o.workflows.Get(ctx, workflowID)
	if err != nil {
		return err
	}
	if !models.CanTransitionWorkflow(wf.Status, models.WorkflowExecuting) {
		return fmt.Errorf("%w: workflow %s is %s", ErrInvalidState, workflowID, wf.Status)
	}
	if err := o.workflows.UpdateStatus(ctx, workflowID, models.WorkflowExecuting, ""); err != nil {
		return err
	}
	o.broadcast("workflow:started", map[string]any{"workflow_id": workflowID})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.cancels[workflowID] = cancel
	o.mu.Unlock()

	go o.execute(runCtx, workflowID)
	return nil
}

// Cancel requests cooperative cancellation of a workflow. It is a no-op if
// the workflow is already terminal.
func (o *Orchestrator) Cancel(ctx context.Context, workflowID string) error {
	wf, err := o.workflows.Get(ctx, workflowID)
	if err != nil {
		return err
	}
	if wf.Terminal() {
		return nil
	}
	o.mu.Lock()
	cancel, ok := o.cancels[workflowID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Status returns the current workflow record and its task DAG.
func (o *Orchestrator) Status(ctx context.Context, workflowID string) (*models.Workflow, []*models.WorkflowTask, error) {
	wf, err := o.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := o.workflows.GetTasks(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	return wf, tasks, nil
}

// execute drives one workflow's DAG to a terminal state: it repeatedly
// computes the ready/skip frontier, launches ready tasks serialized per
// agent, and re-evaluates on every task completion (edge-triggered).
func (o *Orchestrator) execute(ctx context.Context, workflowID string) {
	defer func() {
		o.mu.Lock()
		delete(o.cancels, workflowID)
		o.mu.Unlock()
	}()

	wake := make(chan struct{}, 1)
	inFlight := make(map[string]bool)
	var inFlightMu sync.Mutex

	notify := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	for {
		tasks, err := o.workflows.GetTasks(ctx, workflowID)
		if err != nil {
			o.logger.Error("workflow: load tasks failed", "workflow", workflowID, "error", err)
			return
		}

		statusByID := make(map[string]models.WorkflowTaskStatus, len(tasks))
		for _, t := range tasks {
			statusByID[t.ID] = t.Status
		}

		anyInProgress := false
		anyFailed := false
		allCompleted := true

		for _, t := range tasks {
			switch t.Status {
			case models.TaskInProgress:
				anyInProgress = true
				allCompleted = false
			case models.TaskFailed:
				anyFailed = true
			case models.TaskCompleted, models.TaskSkipped:
				// no-op
			default:
				allCompleted = false
			}
		}

		cancelled := ctx.Err() != nil

		for _, t := range tasks {
			if t.Status != models.TaskPending {
				continue
			}
			ready, skip := t.ReadyGiven(statusByID)
			switch {
			case skip:
				t.Status = models.TaskSkipped
				_ = o.workflows.UpdateTask(ctx, t)
				statusByID[t.ID] = models.TaskSkipped
				allCompleted = false
			case ready && !cancelled:
				inFlightMu.Lock()
				already := inFlight[t.ID]
				if !already {
					inFlight[t.ID] = true
				}
				inFlightMu.Unlock()
				if already {
					continue
				}
				anyInProgress = true
				allCompleted = false
				taskCopy := t
				o.launchTask(ctx, workflowID, taskCopy, func() {
					inFlightMu.Lock()
					delete(inFlight, taskCopy.ID)
					inFlightMu.Unlock()
					notify()
				})
			default:
				allCompleted = false
			}
		}

		switch {
		case allCompleted:
			o.finish(ctx, workflowID, models.WorkflowCompleted, "")
			return
		case anyFailed && !anyInProgress:
			o.finish(ctx, workflowID, models.WorkflowFailed, "one or more tasks failed")
			return
		case cancelled && !anyInProgress:
			o.finish(ctx, workflowID, models.WorkflowCancelled, "")
			return
		}

		select {
		case <-wake:
		case <-time.After(time.Second):
		case <-ctx.Done():
			// loop again immediately to let in-progress tasks settle, then
			// the cancelled branch above will terminate once they drain.
			if !anyInProgress {
				o.finish(ctx, workflowID, models.WorkflowCancelled, "")
				return
			}
		}
	}
}

func (o *Orchestrator) launchTask(ctx context.Context, workflowID string, task *models.WorkflowTask, done func()) {
	o.sem <- struct{}{}
	go func() {
		defer func() { <-o.sem }()
		defer done()

		task.Status = models.TaskInProgress
		task.StartedAt = time.Now().UTC()
		_ = o.workflows.UpdateTask(ctx, task)
		o.broadcast("workflow:task_started", map[string]any{"workflow_id": workflowID, "task_id": task.ID, "agent_id": task.AgentID})

		o.queues.Submit(ctx, task.AgentID, func(taskCtx context.Context) {
			o.runTask(taskCtx, workflowID, task)
		})
	}()
}

func (o *Orchestrator) runTask(ctx context.Context, workflowID string, task *models.WorkflowTask) {
	taskCtx, cancel := context.WithTimeout(ctx, o.taskTimeout)
	defer cancel()

	agentRec, err := o.agents.Get(taskCtx, task.AgentID)
	if err != nil {
		o.completeTask(ctx, workflowID, task, "", fmt.Sprintf("UnknownAgent: %v", err), false)
		return
	}

	wf, _ := o.workflows.Get(ctx, workflowID)
	channelID := ""
	if wf != nil {
		channelID = wf.ChannelID
	}

	output, runErr := o.rt.Drive(taskCtx, task.Description, runtime.RunContext{
		Agent:           agentRec,
		ChannelID:       channelID,
		TaskDescription: task.Description,
	})

	if ctx.Err() != nil {
		o.completeTask(ctx, workflowID, task, output, "Cancelled", true)
		return
	}
	if runErr != nil {
		o.completeTask(ctx, workflowID, task, output, runErr.Error(), false)
		return
	}
	o.completeTask(ctx, workflowID, task, output, "", false)
}

func (o *Orchestrator) completeTask(ctx context.Context, workflowID string, task *models.WorkflowTask, output, errMsg string, cancelled bool) {
	task.CompletedAt = time.Now().UTC()
	task.Output = output
	if errMsg != "" {
		task.Status = models.TaskFailed
		task.Error = errMsg
	} else {
		task.Status = models.TaskCompleted
	}
	_ = o.workflows.UpdateTask(ctx, task)

	if task.Status == models.TaskFailed {
		o.broadcast("workflow:task_failed", map[string]any{"workflow_id": workflowID, "task_id": task.ID, "error": errMsg, "cancelled": cancelled})
	} else {
		o.broadcast("workflow:task_completed", map[string]any{"workflow_id": workflowID, "task_id": task.ID, "output": output})
	}

	if tasks, err := o.workflows.GetTasks(ctx, workflowID); err == nil {
		completed := 0
		for _, t := range tasks {
			if t.Status == models.TaskCompleted || t.Status == models.TaskFailed || t.Status == models.TaskSkipped {
				completed++
			}
		}
		o.broadcast("workflow:progress", map[string]any{
			"workflow_id": workflowID,
			"completed":   completed,
			"total":       len(tasks),
			"percent":     progressPercent(completed, len(tasks)),
		})
	}
}

func progressPercent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return completed * 100 / total
}

func (o *Orchestrator) finish(ctx context.Context, workflowID string, status models.WorkflowStatus, errMsg string) {
	wf, err := o.workflows.Get(ctx, workflowID)
	if err != nil {
		return
	}
	if !models.CanTransitionWorkflow(wf.Status, status) {
		return
	}
	if err := o.workflows.UpdateStatus(ctx, workflowID, status, errMsg); err != nil {
		o.logger.Error("workflow: finalize status failed", "workflow", workflowID, "error", err)
	}

	results := map[string]any{}
	if tasks, err := o.workflows.GetTasks(ctx, workflowID); err == nil {
		var summary strings.Builder
		for _, t := range tasks {
			if t.Output != "" {
				results[t.ID] = t.Output
				summary.WriteString(t.Output)
				summary.WriteString("\n")
			}
		}
		results["summary"] = strings.TrimSpace(summary.String())
	}
	wf.Results = results

	eventName := map[models.WorkflowStatus]string{
		models.WorkflowCompleted: "workflow:completed",
		models.WorkflowFailed:    "workflow:failed",
		models.WorkflowCancelled: "workflow:cancelled",
	}[status]
	if eventName != "" {
		o.broadcast(eventName, map[string]any{"workflow_id": workflowID, "error": errMsg, "results": results})
	}
}

func (o *Orchestrator) broadcast(event string, payload any) {
	if o.hub == nil {
		return
	}
	o.hub.Broadcast(event, payload, hub.BroadcastOptions{Optimize: true})
}
