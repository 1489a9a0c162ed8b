package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/storage"
)

// memDB — все хранилища Builder в памяти с журналом действий.
type memDB struct {
	journal []string

	projects map[uuid.UUID]*domain.Project
	graphs   map[uuid.UUID]*domain.Graph
	nodes    map[uuid.UUID]*domain.Node
	edges    []domain.Edge
	reports  map[uuid.UUID]*domain.Report
	links    [][2]uuid.UUID
	models   map[uuid.UUID]*domain.Model

	snapshots []string
	copies    [][2]uuid.UUID
}

func newMemDB() *memDB {
	return &memDB{
		projects: map[uuid.UUID]*domain.Project{},
		graphs:   map[uuid.UUID]*domain.Graph{},
		nodes:    map[uuid.UUID]*domain.Node{},
		reports:  map[uuid.UUID]*domain.Report{},
		models:   map[uuid.UUID]*domain.Model{},
	}
}

func (db *memDB) addProject(name string) *domain.Project {
	p := &domain.Project{ID: uuid.New(), Name: name}
	db.projects[p.ID] = p
	return p
}

func (db *memDB) nodeByName(graphID uuid.UUID, name string) *domain.Node {
	for _, n := range db.nodes {
		if n.GraphID == graphID && n.Name == name {
			return n
		}
	}
	return nil
}

type projectStore struct{ *memDB }

func (s projectStore) GetByName(_ context.Context, name string) (*domain.Project, error) {
	for _, p := range s.projects {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s projectStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Project, error) {
	if p, ok := s.projects[id]; ok {
		return p, nil
	}
	return nil, repo.ErrNotFound
}

type graphStore struct{ *memDB }

func (s graphStore) Create(_ context.Context, g *domain.Graph) error {
	s.journal = append(s.journal, "graph")
	cp := *g
	s.graphs[g.ID] = &cp
	return nil
}

func (s graphStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Graph, error) {
	if g, ok := s.graphs[id]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, repo.ErrNotFound
}

type nodeStore struct{ *memDB }

func (s nodeStore) Create(_ context.Context, n *domain.Node) error {
	s.journal = append(s.journal, "node:"+n.Name)
	cp := *n
	s.nodes[n.ID] = &cp
	return nil
}

func (s nodeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Node, error) {
	if n, ok := s.nodes[id]; ok {
		cp := *n
		return &cp, nil
	}
	return nil, repo.ErrNotFound
}

func (s nodeStore) AddEdge(_ context.Context, e domain.Edge) error {
	if _, ok := s.nodes[e.NodeID]; !ok {
		return fmt.Errorf("edge from unknown node %s", e.NodeID)
	}
	if _, ok := s.nodes[e.DependsOnID]; !ok {
		return fmt.Errorf("edge to unknown node %s", e.DependsOnID)
	}
	s.journal = append(s.journal, "edge")
	s.edges = append(s.edges, e)
	return nil
}

type reportStore struct{ *memDB }

func (s reportStore) Create(_ context.Context, r *domain.Report) error {
	s.journal = append(s.journal, "report:"+r.Name)
	s.reports[r.ID] = r
	return nil
}

func (s reportStore) LinkNode(_ context.Context, reportID, nodeID uuid.UUID) error {
	s.journal = append(s.journal, "link")
	s.links = append(s.links, [2]uuid.UUID{reportID, nodeID})
	return nil
}

type modelStore struct{ *memDB }

func (s modelStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Model, error) {
	if m, ok := s.models[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, repo.ErrNotFound
}

func (s modelStore) Update(_ context.Context, m *domain.Model) error {
	cp := *m
	s.models[m.ID] = &cp
	return nil
}

func (s modelStore) Repoint(_ context.Context, projectID uuid.UUID, name string, graphID uuid.UUID) (int64, error) {
	var n int64
	for _, m := range s.models {
		if m.ProjectID != projectID || m.GraphID == nil || *m.GraphID == graphID {
			continue
		}
		if g, ok := s.graphs[*m.GraphID]; ok && g.Name == name {
			id := graphID
			m.GraphID = &id
			n++
		}
	}
	return n, nil
}

type fileStore struct{ *memDB }

func (s fileStore) Snapshot(_ context.Context, folder string, _ *domain.Graph) (storage.SnapshotStats, error) {
	s.journal = append(s.journal, "snapshot")
	s.snapshots = append(s.snapshots, folder)
	return storage.SnapshotStats{}, nil
}

func (s fileStore) CopyFrom(_ context.Context, src uuid.UUID, dst *domain.Graph) error {
	s.journal = append(s.journal, "copy")
	s.copies = append(s.copies, [2]uuid.UUID{src, dst.ID})
	return nil
}

type trainables map[string]bool

func (t trainables) IsTrainable(name string) bool { return t[name] }

type layouts map[string]map[string]any

func (l layouts) Get(name string) (map[string]any, bool) {
	cfg, ok := l[name]
	return cfg, ok
}

func newBuilder(db *memDB, trainable trainables, lay layouts) *Builder {
	return New(Config{
		Projects:  projectStore{db},
		Graphs:    graphStore{db},
		Nodes:     nodeStore{db},
		Reports:   reportStore{db},
		Models:    modelStore{db},
		Files:     fileStore{db},
		Executors: trainable,
		Layouts:   lay,
	})
}
