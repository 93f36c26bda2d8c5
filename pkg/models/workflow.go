package models

import "time"

// WorkflowStatus is the lifecycle state of a Workflow.
type WorkflowStatus string

const (
	WorkflowPlanning  WorkflowStatus = "planning"
	WorkflowExecuting WorkflowStatus = "executing"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// workflowTransitions enumerates the only admissible status transitions.
var workflowTransitions = map[WorkflowStatus]map[WorkflowStatus]bool{
	WorkflowPlanning: {
		WorkflowExecuting: true,
		WorkflowFailed:    true,
	},
	WorkflowExecuting: {
		WorkflowCompleted: true,
		WorkflowFailed:    true,
		WorkflowCancelled: true,
	},
}

// CanTransitionWorkflow reports whether from -> to is an admissible transition.
// A workflow in a terminal state (completed, failed, cancelled) admits none.
func CanTransitionWorkflow(from, to WorkflowStatus) bool {
	return workflowTransitions[from][to]
}

// WorkflowTaskStatus is the lifecycle state of one DAG node.
type WorkflowTaskStatus string

const (
	TaskPending    WorkflowTaskStatus = "pending"
	TaskReady      WorkflowTaskStatus = "ready"
	TaskInProgress WorkflowTaskStatus = "in_progress"
	TaskCompleted  WorkflowTaskStatus = "completed"
	TaskFailed     WorkflowTaskStatus = "failed"
	TaskSkipped    WorkflowTaskStatus = "skipped"
)

// taskTransitions enumerates the only admissible task status transitions.
var taskTransitions = map[WorkflowTaskStatus]map[WorkflowTaskStatus]bool{
	TaskPending: {
		TaskReady:   true,
		TaskSkipped: true,
	},
	TaskReady: {
		TaskInProgress: true,
		TaskSkipped:    true,
	},
	TaskInProgress: {
		TaskCompleted: true,
		TaskFailed:    true,
	},
}

// CanTransitionTask reports whether from -> to is an admissible task transition.
func CanTransitionTask(from, to WorkflowTaskStatus) bool {
	return taskTransitions[from][to]
}

// WorkflowPlan is the parsed task list and dependency edges produced by C8.
type WorkflowPlan struct {
	Tasks []PlannedTask `json:"tasks"`
}

// PlannedTask is one entry of a WorkflowPlan, prior to task-record creation.
type PlannedTask struct {
	Index       int      `json:"index"`
	Description string   `json:"description"`
	AgentHandle string   `json:"agent_handle"`
	DependsOn   []int    `json:"depends_on,omitempty"` // indices into WorkflowPlan.Tasks
}

// Workflow is a plan-driven DAG of tasks produced from a single request.
type Workflow struct {
	ID               string         `json:"id"`
	Description      string         `json:"description"` // the original request
	OrchestratorID   string         `json:"orchestrator_agent_id"`
	ChannelID        string         `json:"channel_id"`
	Status           WorkflowStatus `json:"status"`
	Plan             WorkflowPlan   `json:"plan,omitempty"`
	Results          map[string]any `json:"results,omitempty"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	StartedAt        time.Time      `json:"started_at,omitempty"`
	CompletedAt      time.Time      `json:"completed_at,omitempty"`
}

// Terminal reports whether the workflow is in a state admitting no further transitions.
func (w *Workflow) Terminal() bool {
	switch w.Status {
	case WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// WorkflowTask is one node of a Workflow's DAG.
type WorkflowTask struct {
	ID          string             `json:"id"`
	WorkflowID  string             `json:"workflow_id"`
	Description string             `json:"description"`
	AgentID     string             `json:"agent_id"`
	OrderIndex  int                `json:"order_index"`
	ParentIDs   []string           `json:"parent_ids,omitempty"`
	Status      WorkflowTaskStatus `json:"status"`
	Output      string             `json:"output,omitempty"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   time.Time          `json:"started_at,omitempty"`
	CompletedAt time.Time          `json:"completed_at,omitempty"`
}

// ReadyGiven reports whether the task is ready to run given the status of
// its parents, keyed by task ID. A task is ready iff every parent is completed,
// and skipped iff any ancestor has failed.
func (t *WorkflowTask) ReadyGiven(parentStatus map[string]WorkflowTaskStatus) (ready bool, skip bool) {
	for _, pid := range t.ParentIDs {
		status, ok := parentStatus[pid]
		if !ok {
			return false, false
		}
		switch status {
		case TaskFailed:
			return false, true
		case TaskSkipped:
			return false, true
		case TaskCompleted:
			continue
		default:
			return false, false
		}
	}
	return true, false
}
