package engine

import (
	"errors"
	"testing"
)

func spec(name, typ string, deps ...string) ExecutorSpec {
	s := NewExecutorSpec(name, typ)
	s.Depends = deps
	return s
}

func TestBuildDAG_SimpleChain(t *testing.T) {
	dag, err := BuildDAG([]ExecutorSpec{
		spec("A", "download"),
		spec("B", "train", "A"),
		spec("C", "infer", "B"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dag.Size() != 3 {
		t.Errorf("expected 3 nodes, got %d", dag.Size())
	}
	if len(dag.RootNodes) != 1 || dag.RootNodes[0].ID != "A" {
		t.Errorf("expected single root A, got %v", dag.RootNodes)
	}

	nodeB := dag.GetNode("B")
	if len(nodeB.DependsOn) != 1 || nodeB.DependsOn[0].ID != "A" {
		t.Error("node B should depend on A")
	}
	if dag.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", dag.EdgeCount())
	}
}

func TestBuildDAG_AnyDeclarationOrder(t *testing.T) {
	// D → {B, C} → A, объявлены в обратном порядке
	orders := [][]ExecutorSpec{
		{spec("A", "x"), spec("B", "x", "A"), spec("C", "x", "A"), spec("D", "x", "B", "C")},
		{spec("D", "x", "B", "C"), spec("C", "x", "A"), spec("B", "x", "A"), spec("A", "x")},
		{spec("C", "x", "A"), spec("D", "x", "B", "C"), spec("A", "x"), spec("B", "x", "A")},
	}

	for i, executors := range orders {
		dag, err := BuildDAG(executors)
		if err != nil {
			t.Fatalf("order %d: unexpected error: %v", i, err)
		}
		if len(dag.Order) != 4 {
			t.Fatalf("order %d: expected 4 nodes in order, got %d", i, len(dag.Order))
		}
		if dag.EdgeCount() != 4 {
			t.Errorf("order %d: expected 4 edges, got %d", i, dag.EdgeCount())
		}

		positions := make(map[string]int)
		for pos, node := range dag.Order {
			positions[node.ID] = pos
		}
		for _, node := range dag.Order {
			for _, dep := range node.DependsOn {
				if positions[dep.ID] > positions[node.ID] {
					t.Errorf("order %d: %s should come before %s", i, dep.ID, node.ID)
				}
			}
		}
	}
}

func TestBuildDAG_DuplicateDependency(t *testing.T) {
	dag, err := BuildDAG([]ExecutorSpec{
		spec("A", "x"),
		spec("B", "x", "A", "A"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dag.GetNode("B").InDegree != 1 {
		t.Errorf("duplicate dependency should produce a single edge, got %d", dag.GetNode("B").InDegree)
	}
}

func TestBuildDAG_UnknownDependency(t *testing.T) {
	_, err := BuildDAG([]ExecutorSpec{
		spec("A", "x"),
		spec("B", "x", "missing"),
	})
	if !errors.Is(err, ErrUnknownDependency) {
		t.Fatalf("expected ErrUnknownDependency, got %v", err)
	}

	var buildErr *BuildError
	if !errors.As(err, &buildErr) || buildErr.Node != "B" {
		t.Errorf("error should point at executor B, got %v", err)
	}
}

func TestBuildDAG_CyclicDependency(t *testing.T) {
	_, err := BuildDAG([]ExecutorSpec{
		spec("A", "x", "C"),
		spec("B", "x", "A"),
		spec("C", "x", "B"),
	})
	if !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestBuildDAG_SelfDependency(t *testing.T) {
	_, err := BuildDAG([]ExecutorSpec{spec("A", "x", "A")})
	if !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestBuildDAG_DuplicateName(t *testing.T) {
	_, err := BuildDAG([]ExecutorSpec{spec("A", "x"), spec("A", "y")})
	if !errors.Is(err, ErrInvalidDescription) {
		t.Errorf("expected ErrInvalidDescription, got %v", err)
	}
}

func TestBuildDAG_Empty(t *testing.T) {
	dag, err := BuildDAG(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dag.Size() != 0 || len(dag.Order) != 0 {
		t.Error("empty executors should produce empty DAG")
	}
}

func TestBuildDAG_OrderPrefersDeclaration(t *testing.T) {
	dag, err := BuildDAG([]ExecutorSpec{
		spec("report", "x", "prepare"),
		spec("prepare", "x"),
		spec("train", "x"),
		spec("infer", "x", "train"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"prepare", "report", "train", "infer"}
	for i, node := range dag.Order {
		if node.ID != want[i] {
			t.Fatalf("order[%d] = %s, want %s (full order %v)", i, node.ID, want[i], names(dag.Order))
		}
	}
}

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
