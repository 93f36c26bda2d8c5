package planparser

import (
	"errors"
	"testing"
)

type fakeResolver map[string]string

func (f fakeResolver) ResolveHandle(handle string) (string, bool) {
	id, ok := f[handle]
	return id, ok
}

func TestParse_ParallelNoDependency(t *testing.T) {
	text := "Task 1: @frontend - Add dark mode\n" +
		"Task 2: @frontend - Add ARIA labels\n" +
		"Task 3: @qa - Test dark mode (depends on Task 1)\n" +
		"Task 4: @qa - Run a11y audit (depends on Task 2)\n"

	plan, err := Parse(text, fakeResolver{"frontend": "agent-fe", "qa": "agent-qa"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(plan.Tasks) != 4 {
		t.Fatalf("len(tasks) = %d, want 4", len(plan.Tasks))
	}
	if got := plan.Tasks[2].DependsOn; len(got) != 1 || got[0] != 0 {
		t.Errorf("task 3 depends_on = %v, want [0]", got)
	}
	if got := plan.Tasks[3].DependsOn; len(got) != 1 || got[0] != 1 {
		t.Errorf("task 4 depends_on = %v, want [1]", got)
	}
}

func TestParse_IgnoresProse(t *testing.T) {
	text := "Here is my plan:\n" +
		"Task 1: @backend - Create model\n" +
		"Let me know if you have questions.\n"

	plan, err := Parse(text, fakeResolver{"backend": "agent-be"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(plan.Tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1", len(plan.Tasks))
	}
}

func TestParse_EmptyPlan(t *testing.T) {
	_, err := Parse("just prose, no tasks here", fakeResolver{})
	if !errors.Is(err, ErrEmptyPlan) {
		t.Fatalf("err = %v, want ErrEmptyPlan", err)
	}
}

func TestParse_UnknownAgent(t *testing.T) {
	_, err := Parse("Task 1: @ghost - Do something", fakeResolver{})
	var target *UnknownAgentError
	if !errors.As(err, &target) {
		t.Fatalf("err = %v, want *UnknownAgentError", err)
	}
}

func TestParse_UnknownDependency(t *testing.T) {
	text := "Task 1: @backend - A (depends on Task 9)"
	_, err := Parse(text, fakeResolver{"backend": "agent-be"})
	var target *UnknownDependencyError
	if !errors.As(err, &target) {
		t.Fatalf("err = %v, want *UnknownDependencyError", err)
	}
}

func TestParse_SelfDependencyIsCyclic(t *testing.T) {
	text := "Task 1: @backend - A (depends on Task 1)"
	_, err := Parse(text, fakeResolver{"backend": "agent-be"})
	var target *CyclicPlanError
	if !errors.As(err, &target) {
		t.Fatalf("err = %v, want *CyclicPlanError", err)
	}
}

func TestParse_Cycle(t *testing.T) {
	text := "Task 1: @backend - A (depends on Task 2)\n" +
		"Task 2: @backend - B (depends on Task 1)\n"
	_, err := Parse(text, fakeResolver{"backend": "agent-be"})
	var target *CyclicPlanError
	if !errors.As(err, &target) {
		t.Fatalf("err = %v, want *CyclicPlanError", err)
	}
}

func TestParse_DuplicateOrdinal(t *testing.T) {
	text := "Task 1: @backend - A\nTask 1: @backend - B\n"
	_, err := Parse(text, fakeResolver{"backend": "agent-be"})
	var target *DuplicateTaskError
	if !errors.As(err, &target) {
		t.Fatalf("err = %v, want *DuplicateTaskError", err)
	}
}

func TestParse_CaseInsensitiveHandle(t *testing.T) {
	_, err := Parse("Task 1: @Backend - A", fakeResolver{"backend": "agent-be"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
}
