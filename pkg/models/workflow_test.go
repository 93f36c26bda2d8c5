package models

import "testing"

func TestCanTransitionWorkflow(t *testing.T) {
	tests := []struct {
		from, to WorkflowStatus
		want     bool
	}{
		{WorkflowPlanning, WorkflowExecuting, true},
		{WorkflowPlanning, WorkflowFailed, true},
		{WorkflowExecuting, WorkflowCompleted, true},
		{WorkflowExecuting, WorkflowFailed, true},
		{WorkflowExecuting, WorkflowCancelled, true},
		{WorkflowPlanning, WorkflowCompleted, false},
		{WorkflowCompleted, WorkflowExecuting, false},
		{WorkflowCancelled, WorkflowPlanning, false},
	}
	for _, tt := range tests {
		if got := CanTransitionWorkflow(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionWorkflow(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestWorkflow_Terminal(t *testing.T) {
	tests := []struct {
		status WorkflowStatus
		want   bool
	}{
		{WorkflowPlanning, false},
		{WorkflowExecuting, false},
		{WorkflowCompleted, true},
		{WorkflowFailed, true},
		{WorkflowCancelled, true},
	}
	for _, tt := range tests {
		w := &Workflow{Status: tt.status}
		if got := w.Terminal(); got != tt.want {
			t.Errorf("Terminal() for %v = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCanTransitionTask(t *testing.T) {
	tests := []struct {
		from, to WorkflowTaskStatus
		want     bool
	}{
		{TaskPending, TaskReady, true},
		{TaskReady, TaskInProgress, true},
		{TaskInProgress, TaskCompleted, true},
		{TaskInProgress, TaskFailed, true},
		{TaskPending, TaskSkipped, true},
		{TaskReady, TaskSkipped, true},
		{TaskPending, TaskInProgress, false},
		{TaskCompleted, TaskPending, false},
	}
	for _, tt := range tests {
		if got := CanTransitionTask(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionTask(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestWorkflowTask_ReadyGiven(t *testing.T) {
	task := &WorkflowTask{ID: "t3", ParentIDs: []string{"t1", "t2"}}

	ready, skip := task.ReadyGiven(map[string]WorkflowTaskStatus{
		"t1": TaskCompleted,
	})
	if ready || skip {
		t.Fatalf("expected neither ready nor skip with missing parent status, got ready=%v skip=%v", ready, skip)
	}

	ready, skip = task.ReadyGiven(map[string]WorkflowTaskStatus{
		"t1": TaskCompleted,
		"t2": TaskCompleted,
	})
	if !ready || skip {
		t.Fatalf("expected ready=true skip=false when all parents completed, got ready=%v skip=%v", ready, skip)
	}

	ready, skip = task.ReadyGiven(map[string]WorkflowTaskStatus{
		"t1": TaskCompleted,
		"t2": TaskFailed,
	})
	if ready || !skip {
		t.Fatalf("expected ready=false skip=true when a parent failed, got ready=%v skip=%v", ready, skip)
	}
}

func TestWorkflowTask_ReadyGiven_NoParents(t *testing.T) {
	task := &WorkflowTask{ID: "root"}
	ready, skip := task.ReadyGiven(nil)
	if !ready || skip {
		t.Fatalf("root task with no parents should be ready immediately, got ready=%v skip=%v", ready, skip)
	}
}
