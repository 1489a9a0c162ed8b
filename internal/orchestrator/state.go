package orchestrator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
)

// GraphState — снимок состояния графа в памяти на один проход.
//
// Строится из node и рёбер, прочитанных из БД. Решения (какие node
// отправить, какие пропустить) принимаются по снимку и затем
// записываются в БД.
type GraphState struct {
	// Graph — граф из БД.
	Graph *domain.Graph

	// DAG — зависимости node по именам.
	DAG *engine.DAG

	nodes  map[uuid.UUID]*domain.Node
	byName map[string]*domain.Node
}

// GraphStats — количество node графа по статусам.
type GraphStats struct {
	Total    int
	Pending  int // NotRan + Queued
	Running  int
	Success  int
	Failed   int // Failed + Stopped + Skipped
	Finished bool
}

// NewGraphState строит GraphState.
func NewGraphState(graph *domain.Graph, nodes []domain.Node, edges []domain.Edge) (*GraphState, error) {
	s := &GraphState{
		Graph:  graph,
		nodes:  make(map[uuid.UUID]*domain.Node, len(nodes)),
		byName: make(map[string]*domain.Node, len(nodes)),
	}
	for i := range nodes {
		n := &nodes[i]
		s.nodes[n.ID] = n
		s.byName[n.Name] = n
	}

	// зависимости в порядке создания node
	depends := make(map[uuid.UUID][]string, len(nodes))
	for _, e := range edges {
		dep, ok := s.nodes[e.DependsOnID]
		if !ok {
			return nil, fmt.Errorf("%w: edge %s -> %s", ErrBrokenGraph, e.NodeID, e.DependsOnID)
		}
		depends[e.NodeID] = append(depends[e.NodeID], dep.Name)
	}

	specs := make([]engine.ExecutorSpec, 0, len(nodes))
	for i := range nodes {
		spec := engine.NewExecutorSpec(nodes[i].Name, nodes[i].Executor)
		spec.Depends = depends[nodes[i].ID]
		specs = append(specs, spec)
	}

	dag, err := engine.BuildDAG(specs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokenGraph, err)
	}
	s.DAG = dag

	return s, nil
}

// GraphID возвращает ID графа.
func (s *GraphState) GraphID() uuid.UUID {
	return s.Graph.ID
}

// Node возвращает node по ID.
func (s *GraphState) Node(id uuid.UUID) (*domain.Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Blocked возвращает NotRan node, которые уже не смогут выполниться:
// хотя бы одна зависимость завершилась не Success. Возвращённые node
// переведены в Skipped в снимке, поэтому пропуск распространяется
// по цепочке за один вызов.
func (s *GraphState) Blocked() []*domain.Node {
	blocked := make([]*domain.Node, 0)
	for _, dn := range s.DAG.Order {
		node := s.byName[dn.ID]
		if node.Status != domain.NodeStatusNotRan {
			continue
		}
		for _, dep := range dn.DependsOn {
			st := s.byName[dep.ID].Status
			if st.IsTerminal() && st != domain.NodeStatusSuccess {
				node.Status = domain.NodeStatusSkipped
				blocked = append(blocked, node)
				break
			}
		}
	}
	return blocked
}

// Ready возвращает NotRan node, все зависимости которых завершились
// Success, в топологическом порядке.
func (s *GraphState) Ready() []*domain.Node {
	ready := make([]*domain.Node, 0)
	for _, dn := range s.DAG.Order {
		node := s.byName[dn.ID]
		if node.Status != domain.NodeStatusNotRan {
			continue
		}
		ok := true
		for _, dep := range dn.DependsOn {
			if s.byName[dep.ID].Status != domain.NodeStatusSuccess {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, node)
		}
	}
	return ready
}

// Stats возвращает статистику графа.
func (s *GraphState) Stats() GraphStats {
	st := GraphStats{Total: len(s.nodes)}
	for _, n := range s.nodes {
		switch n.Status {
		case domain.NodeStatusNotRan, domain.NodeStatusQueued:
			st.Pending++
		case domain.NodeStatusInProgress:
			st.Running++
		case domain.NodeStatusSuccess:
			st.Success++
		default:
			st.Failed++
		}
	}
	st.Finished = st.Pending == 0 && st.Running == 0
	return st
}
