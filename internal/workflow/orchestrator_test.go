package workflow

import (
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestTasksFromPlan_ResolvesDependencyIndicesToIDs(t *testing.T) {
	plan := &models.WorkflowPlan{
		Tasks: []models.PlannedTask{
			{Index: 1, Description: "research", AgentHandle: "agent-research"},
			{Index: 2, Description: "write", AgentHandle: "agent-writer", DependsOn: []int{0}},
			{Index: 3, Description: "review", AgentHandle: "agent-reviewer", DependsOn: []int{0, 1}},
		},
	}

	tasks, err := tasksFromPlan("wf-1", plan)
	if err != nil {
		t.Fatalf("tasksFromPlan: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if len(tasks[1].ParentIDs) != 1 || tasks[1].ParentIDs[0] != tasks[0].ID {
		t.Fatalf("task 2 parents = %v, want [%s]", tasks[1].ParentIDs, tasks[0].ID)
	}
	if len(tasks[2].ParentIDs) != 2 {
		t.Fatalf("task 3 expected 2 parents, got %d", len(tasks[2].ParentIDs))
	}
	for _, task := range tasks {
		if task.WorkflowID != "wf-1" {
			t.Fatalf("task.WorkflowID = %q, want wf-1", task.WorkflowID)
		}
		if task.Status != models.TaskPending {
			t.Fatalf("task.Status = %q, want pending", task.Status)
		}
	}
}

func TestTasksFromPlan_OutOfRangeDependency(t *testing.T) {
	plan := &models.WorkflowPlan{
		Tasks: []models.PlannedTask{
			{Index: 1, Description: "solo", AgentHandle: "agent-a", DependsOn: []int{5}},
		},
	}
	if _, err := tasksFromPlan("wf-1", plan); err == nil {
		t.Fatal("expected an error for an out-of-range dependency index")
	}
}

func TestProgressPercent(t *testing.T) {
	cases := []struct{ completed, total, want int }{
		{0, 0, 0},
		{0, 4, 0},
		{1, 4, 25},
		{2, 4, 50},
		{4, 4, 100},
	}
	for _, c := range cases {
		if got := progressPercent(c.completed, c.total); got != c.want {
			t.Errorf("progressPercent(%d, %d) = %d, want %d", c.completed, c.total, got, c.want)
		}
	}
}
