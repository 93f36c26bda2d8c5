// Package planparser turns the free-text plan emitted by the orchestrator
// agent into an ordered models.WorkflowPlan. The grammar is deliberately
// line-tolerant: the orchestrator is an LLM and will wrap its task lines in
// prose, so unmatched lines are skipped rather than rejected.
package planparser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/haasonsaas/nexus/pkg/models"
)

// Recognized form, one task per line:
//
//	Task N: @agent_handle - Description [(depends on Task i[, Task j, ...])]
var taskLine = regexp.MustCompile(`(?i)^Task\s+(\d+)\s*:\s*@(\S+)\s*-\s*(.+?)(?:\s*\(depends on\s+(.+?)\)\s*)?$`)

var dependsOnOrdinal = regexp.MustCompile(`(?i)Task\s+(\d+)`)

// ErrEmptyPlan is returned when zero lines matched the task grammar.
var ErrEmptyPlan = fmt.Errorf("planparser: no tasks recognized in plan text")

// UnknownAgentError reports a task referencing a handle that does not
// resolve to an active agent.
type UnknownAgentError struct {
	Handle string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("planparser: unknown agent %q", e.Handle)
}

// UnknownDependencyError reports a dependency referencing a nonexistent
// task ordinal.
type UnknownDependencyError struct {
	Ordinal    int
	References int
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("planparser: task %d depends on unknown task %d", e.Ordinal, e.References)
}

// CyclicPlanError reports a dependency cycle (including self-reference).
type CyclicPlanError struct {
	Ordinals []int
}

func (e *CyclicPlanError) Error() string {
	return fmt.Sprintf("planparser: cyclic dependency among tasks %v", e.Ordinals)
}

// DuplicateTaskError reports two lines claiming the same ordinal.
type DuplicateTaskError struct {
	Ordinal int
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("planparser: duplicate task ordinal %d", e.Ordinal)
}

// AgentResolver resolves a case-insensitive handle to an active agent's id.
type AgentResolver interface {
	ResolveHandle(handle string) (agentID string, ok bool)
}

type rawTask struct {
	ordinal     int
	handle      string
	description string
	dependsOn   []int // ordinals
}

// Parse recognizes task lines in text, resolves agent handles via resolve,
// and returns a models.WorkflowPlan whose PlannedTask.DependsOn entries are
// zero-based indices into Tasks (not raw ordinals).
func Parse(text string, resolve AgentResolver) (*models.WorkflowPlan, error) {
	lines := strings.Split(text, "\n")

	seen := make(map[int]bool)
	var tasks []rawTask

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		m := taskLine.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		ordinal, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if seen[ordinal] {
			return nil, &DuplicateTaskError{Ordinal: ordinal}
		}
		seen[ordinal] = true

		handle := strings.ToLower(strings.TrimSpace(m[2]))
		description := strings.TrimSpace(m[3])

		var deps []int
		if depsText := strings.TrimSpace(m[4]); depsText != "" {
			for _, dm := range dependsOnOrdinal.FindAllStringSubmatch(depsText, -1) {
				n, err := strconv.Atoi(dm[1])
				if err != nil {
					continue
				}
				deps = append(deps, n)
			}
		}

		tasks = append(tasks, rawTask{
			ordinal:     ordinal,
			handle:      handle,
			description: description,
			dependsOn:   deps,
		})
	}

	if len(tasks) == 0 {
		return nil, ErrEmptyPlan
	}

	ordinalToIndex := make(map[int]int, len(tasks))
	for i, t := range tasks {
		ordinalToIndex[t.ordinal] = i
	}

	// Resolve dependencies, detect unknown references and self/cycles.
	depIdx := make([][]int, len(tasks))
	for i, t := range tasks {
		for _, dep := range t.dependsOn {
			if dep == t.ordinal {
				return nil, &CyclicPlanError{Ordinals: []int{t.ordinal}}
			}
			idx, ok := ordinalToIndex[dep]
			if !ok {
				return nil, &UnknownDependencyError{Ordinal: t.ordinal, References: dep}
			}
			depIdx[i] = append(depIdx[i], idx)
		}
	}

	if cyc := detectCycle(depIdx); len(cyc) > 0 {
		ordinals := make([]int, len(cyc))
		for i, idx := range cyc {
			ordinals[i] = tasks[idx].ordinal
		}
		return nil, &CyclicPlanError{Ordinals: ordinals}
	}

	plan := &models.WorkflowPlan{Tasks: make([]models.PlannedTask, len(tasks))}
	for i, t := range tasks {
		agentID := t.handle
		if resolve != nil {
			resolved, ok := resolve.ResolveHandle(t.handle)
			if !ok {
				return nil, &UnknownAgentError{Handle: t.handle}
			}
			agentID = resolved
		}
		plan.Tasks[i] = models.PlannedTask{
			Index:       t.ordinal,
			Description: t.description,
			AgentHandle: agentID,
			DependsOn:   depIdx[i],
		}
	}

	return plan, nil
}

// detectCycle runs a DFS over the dependency graph (edges index -> parent
// indices) and returns one cycle's node indices, or nil if acyclic.
func detectCycle(depIdx [][]int) []int {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(depIdx))
	var path []int
	var cycle []int

	var visit func(n int) bool
	visit = func(n int) bool {
		color[n] = gray
		path = append(path, n)
		for _, p := range depIdx[n] {
			switch color[p] {
			case gray:
				// found the back edge; extract the cycle from path
				for i, node := range path {
					if node == p {
						cycle = append([]int{}, path[i:]...)
						break
					}
				}
				return true
			case white:
				if visit(p) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return false
	}

	for i := range depIdx {
		if color[i] == white {
			if visit(i) {
				return cycle
			}
		}
	}
	return nil
}
