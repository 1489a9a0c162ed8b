package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/repo"
)

// Значения task_type, задающие вид node явно.
const (
	taskTypeTrain = "train"
	taskTypeInfer = "infer"
)

// reportConfigKey — ключ конфигурации отчёта в AdditionalInfo node.
const reportConfigKey = "report_config"

// Config — зависимости Builder.
type Config struct {
	Projects ProjectStore
	Graphs   GraphStore
	Nodes    NodeStore
	Reports  ReportStore
	Models   ModelStore
	Files    FileStore

	Executors ExecutorRegistry
	Layouts   ReportLayouts

	Logger *slog.Logger

	// Now — источник времени (по умолчанию time.Now).
	Now func() time.Time
}

// Builder создаёт графы из описаний pipeline.
type Builder struct {
	projects ProjectStore
	graphs   GraphStore
	nodes    NodeStore
	reports  ReportStore
	models   ModelStore
	files    FileStore

	executors ExecutorRegistry
	layouts   ReportLayouts

	logger *slog.Logger
	now    func() time.Time
}

// New создаёт Builder.
func New(cfg Config) *Builder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", string(domain.ComponentBuilder))
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Builder{
		projects:  cfg.Projects,
		graphs:    cfg.Graphs,
		nodes:     cfg.Nodes,
		reports:   cfg.Reports,
		models:    cfg.Models,
		files:     cfg.Files,
		executors: cfg.Executors,
		layouts:   cfg.Layouts,
		logger:    logger,
		now:       now,
	}
}

// BuildRequest — запрос на создание обычного графа.
type BuildRequest struct {
	Pipeline *engine.Pipeline

	// Debug — node выполняются из каталога проекта без материализации.
	Debug bool

	// RawText — исходный текст описания; если пусто, описание сериализуется заново.
	RawText string

	// UploadFiles — снять SourceFolder как дерево файлов графа.
	UploadFiles  bool
	SourceFolder string

	// CopyFrom — взять дерево файлов уже снятого графа.
	CopyFrom *uuid.UUID
}

// Build создаёт граф и его node. Возвращает карту имя executor'а → ID node.
//
// Ошибки описания (неизвестная зависимость, цикл, неизвестный проект
// или раскладка отчёта) обнаруживаются до создания каких-либо записей.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (map[string]uuid.UUID, error) {
	if req.UploadFiles && req.CopyFrom != nil {
		return nil, ErrConflictingSource
	}

	p := req.Pipeline
	if p.Kind() != domain.GraphKindStandard {
		return nil, fmt.Errorf("%w: expected executors section", ErrWrongKind)
	}

	dag, err := engine.BuildDAG(p.Executors)
	if err != nil {
		return nil, err
	}

	project, err := b.project(ctx, p.Info.Project)
	if err != nil {
		return nil, err
	}

	var graphLayout map[string]any
	if p.Info.Report != "" {
		if graphLayout, err = b.layout(p.Info.Report); err != nil {
			return nil, err
		}
	}

	// персональные отчёты обучающих node; раскладка executor'а
	// переопределяет раскладку графа
	nodeLayouts := make(map[string]map[string]any)
	for _, node := range dag.Order {
		if graphLayout == nil || b.kindOf(node.Spec) != domain.NodeKindTrain {
			continue
		}
		layout := graphLayout
		if node.Spec.Report != "" {
			if layout, err = b.layout(node.Spec.Report); err != nil {
				return nil, engine.NewBuildError(node.ID, "report", err.Error(), ErrUnknownReportLayout)
			}
		}
		nodeLayouts[node.ID] = layout
	}

	configText := req.RawText
	if configText == "" {
		raw, err := p.Marshal()
		if err != nil {
			return nil, fmt.Errorf("marshal pipeline: %w", err)
		}
		configText = string(raw)
	}

	graph := &domain.Graph{
		ID:          uuid.New(),
		Name:        p.Info.Name,
		Config:      configText,
		ProjectID:   project.ID,
		DockerImage: p.Info.DockerImage,
		Kind:        domain.GraphKindStandard,
		CreatedAt:   b.now(),
	}
	logger := b.logger.With("dag_id", graph.ID, "dag", graph.Name)

	if graphLayout != nil {
		rep, err := b.createReport(ctx, p.Info.Name, project.ID, graphLayout)
		if err != nil {
			return nil, err
		}
		graph.ReportID = &rep.ID
	}

	if err := b.graphs.Create(ctx, graph); err != nil {
		return nil, fmt.Errorf("create dag: %w", err)
	}

	switch {
	case req.UploadFiles:
		if _, err := b.files.Snapshot(ctx, req.SourceFolder, graph); err != nil {
			return nil, err
		}
	case req.CopyFrom != nil:
		if err := b.files.CopyFrom(ctx, *req.CopyFrom, graph); err != nil {
			return nil, err
		}
	}

	created := make(map[string]uuid.UUID, dag.Size())
	for _, dn := range dag.Order {
		spec := dn.Spec
		node := &domain.Node{
			ID:       uuid.New(),
			Name:     spec.Name,
			Executor: spec.Name,
			GraphID:  graph.ID,
			Resources: domain.Resources{
				GPU:    spec.GPU,
				CPU:    spec.CPU,
				Memory: spec.Memory,
			},
			Kind:      b.kindOf(spec),
			Status:    domain.NodeStatusNotRan,
			Debug:     req.Debug,
			Computer:  p.Info.Computer,
			Steps:     spec.Steps,
			CreatedAt: b.now(),
		}

		layout, withReport := nodeLayouts[spec.Name]
		if withReport {
			rep, err := b.createReport(ctx, node.Name, project.ID, layout)
			if err != nil {
				return nil, err
			}
			node.ReportID = &rep.ID
			node.AdditionalInfo = map[string]any{reportConfigKey: layout}
		}

		if err := b.nodes.Create(ctx, node); err != nil {
			return nil, fmt.Errorf("create node %s: %w", spec.Name, err)
		}

		if withReport {
			if err := b.reports.LinkNode(ctx, *node.ReportID, node.ID); err != nil {
				return nil, err
			}
			if err := b.reports.LinkNode(ctx, *graph.ReportID, node.ID); err != nil {
				return nil, err
			}
		}

		created[spec.Name] = node.ID

		for _, dep := range dn.DependsOn {
			edge := domain.Edge{NodeID: node.ID, DependsOnID: created[dep.ID]}
			if err := b.nodes.AddEdge(ctx, edge); err != nil {
				return nil, fmt.Errorf("add edge %s -> %s: %w", spec.Name, dep.ID, err)
			}
		}
	}

	logger.Info("dag created",
		"project", project.Name,
		"nodes", len(created),
		"edges", dag.EdgeCount(),
		"debug", req.Debug,
	)

	return created, nil
}

// PipeRequest — запрос на создание pipe-графа.
type PipeRequest struct {
	Pipeline     *engine.Pipeline
	RawText      string
	SourceFolder string
}

// BuildPipe создаёт pipe-граф и перенаправляет на него модели проекта,
// привязанные к прежним графам с тем же именем.
func (b *Builder) BuildPipe(ctx context.Context, req PipeRequest) (*domain.Graph, error) {
	p := req.Pipeline
	if p.Kind() != domain.GraphKindPipe {
		return nil, fmt.Errorf("%w: expected interfaces and pipes sections", ErrWrongKind)
	}

	project, err := b.project(ctx, p.Info.Project)
	if err != nil {
		return nil, err
	}

	configText := req.RawText
	if configText == "" {
		raw, err := p.Marshal()
		if err != nil {
			return nil, fmt.Errorf("marshal pipeline: %w", err)
		}
		configText = string(raw)
	}

	graph := &domain.Graph{
		ID:          uuid.New(),
		Name:        p.Info.Name,
		Config:      configText,
		ProjectID:   project.ID,
		DockerImage: p.Info.DockerImage,
		Kind:        domain.GraphKindPipe,
		CreatedAt:   b.now(),
	}
	if err := b.graphs.Create(ctx, graph); err != nil {
		return nil, fmt.Errorf("create pipe dag: %w", err)
	}

	if _, err := b.files.Snapshot(ctx, req.SourceFolder, graph); err != nil {
		return nil, err
	}

	moved, err := b.models.Repoint(ctx, project.ID, graph.Name, graph.ID)
	if err != nil {
		return nil, err
	}

	b.logger.Info("pipe dag created",
		"dag_id", graph.ID,
		"dag", graph.Name,
		"project", project.Name,
		"models_repointed", moved,
	)

	return graph, nil
}

// kindOf определяет вид node.
func (b *Builder) kindOf(spec *engine.ExecutorSpec) domain.NodeKind {
	switch {
	case spec.TaskType == taskTypeTrain:
		return domain.NodeKindTrain
	case b.executors != nil && b.executors.IsTrainable(spec.Type):
		return domain.NodeKindTrain
	case spec.TaskType == taskTypeInfer:
		return domain.NodeKindInfer
	default:
		return domain.NodeKindUser
	}
}

func (b *Builder) project(ctx context.Context, name string) (*domain.Project, error) {
	project, err := b.projects.GetByName(ctx, name)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProject, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", name, err)
	}
	return project, nil
}

func (b *Builder) layout(name string) (map[string]any, error) {
	if b.layouts != nil {
		if layout, ok := b.layouts.Get(name); ok {
			return layout, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownReportLayout, name)
}

func (b *Builder) createReport(ctx context.Context, name string, projectID uuid.UUID, layout map[string]any) (*domain.Report, error) {
	rep := &domain.Report{
		ID:        uuid.New(),
		Name:      name,
		ProjectID: projectID,
		Config:    layout,
		CreatedAt: b.now(),
	}
	if err := b.reports.Create(ctx, rep); err != nil {
		return nil, fmt.Errorf("create report %s: %w", name, err)
	}
	return rep, nil
}
