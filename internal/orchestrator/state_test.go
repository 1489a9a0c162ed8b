package orchestrator

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// chain строит граф prepare -> train -> infer и отдельный report.
func chain(statuses map[string]domain.NodeStatus) (*domain.Graph, []domain.Node, []domain.Edge) {
	graph := &domain.Graph{ID: uuid.New()}
	names := []string{"prepare", "train", "infer", "report"}

	nodes := make([]domain.Node, 0, len(names))
	ids := make(map[string]uuid.UUID, len(names))
	for _, name := range names {
		id := uuid.New()
		ids[name] = id
		nodes = append(nodes, domain.Node{ID: id, Name: name, Executor: name, GraphID: graph.ID, Status: statuses[name]})
	}

	edges := []domain.Edge{
		{NodeID: ids["train"], DependsOnID: ids["prepare"]},
		{NodeID: ids["infer"], DependsOnID: ids["train"]},
	}
	return graph, nodes, edges
}

func names(nodes []*domain.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGraphState_ReadyRoots(t *testing.T) {
	graph, nodes, edges := chain(nil)

	state, err := NewGraphState(graph, nodes, edges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := names(state.Ready()); !equal(got, []string{"prepare", "report"}) {
		t.Errorf("expected [prepare report], got %v", got)
	}
	if got := state.Blocked(); len(got) != 0 {
		t.Errorf("expected nothing blocked, got %v", names(got))
	}
}

func TestGraphState_ReadyAfterSuccess(t *testing.T) {
	graph, nodes, edges := chain(map[string]domain.NodeStatus{
		"prepare": domain.NodeStatusSuccess,
		"report":  domain.NodeStatusInProgress,
	})

	state, err := NewGraphState(graph, nodes, edges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := names(state.Ready()); !equal(got, []string{"train"}) {
		t.Errorf("expected [train], got %v", got)
	}
}

func TestGraphState_BlockedPropagates(t *testing.T) {
	for _, status := range []domain.NodeStatus{
		domain.NodeStatusFailed,
		domain.NodeStatusStopped,
		domain.NodeStatusSkipped,
	} {
		t.Run(status.String(), func(t *testing.T) {
			graph, nodes, edges := chain(map[string]domain.NodeStatus{"prepare": status})

			state, err := NewGraphState(graph, nodes, edges)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			blocked := state.Blocked()
			if got := names(blocked); !equal(got, []string{"train", "infer"}) {
				t.Errorf("expected [train infer], got %v", got)
			}
			for _, n := range blocked {
				if n.Status != domain.NodeStatusSkipped {
					t.Errorf("%s: expected skipped, got %s", n.Name, n.Status)
				}
			}
			if got := names(state.Ready()); !equal(got, []string{"report"}) {
				t.Errorf("expected [report], got %v", got)
			}
		})
	}
}

func TestGraphState_RunningDependencyWaits(t *testing.T) {
	graph, nodes, edges := chain(map[string]domain.NodeStatus{
		"prepare": domain.NodeStatusInProgress,
		"report":  domain.NodeStatusQueued,
	})

	state, err := NewGraphState(graph, nodes, edges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := state.Ready(); len(got) != 0 {
		t.Errorf("expected nothing ready, got %v", names(got))
	}
	if got := state.Blocked(); len(got) != 0 {
		t.Errorf("expected nothing blocked, got %v", names(got))
	}
}

func TestGraphState_Stats(t *testing.T) {
	graph, nodes, edges := chain(map[string]domain.NodeStatus{
		"prepare": domain.NodeStatusSuccess,
		"train":   domain.NodeStatusSuccess,
		"infer":   domain.NodeStatusFailed,
		"report":  domain.NodeStatusSuccess,
	})

	state, err := NewGraphState(graph, nodes, edges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := state.Stats()
	if st.Total != 4 || st.Success != 3 || st.Failed != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if !st.Finished {
		t.Error("dag should be finished")
	}
}

func TestGraphState_BrokenEdge(t *testing.T) {
	graph, nodes, _ := chain(nil)
	edges := []domain.Edge{{NodeID: nodes[0].ID, DependsOnID: uuid.New()}}

	_, err := NewGraphState(graph, nodes, edges)
	if !errors.Is(err, ErrBrokenGraph) {
		t.Errorf("expected ErrBrokenGraph, got %v", err)
	}
}

func TestGraphState_Cycle(t *testing.T) {
	graph, nodes, edges := chain(nil)
	edges = append(edges, domain.Edge{NodeID: nodes[0].ID, DependsOnID: nodes[2].ID})

	_, err := NewGraphState(graph, nodes, edges)
	if !errors.Is(err, ErrBrokenGraph) {
		t.Errorf("expected ErrBrokenGraph, got %v", err)
	}
}
