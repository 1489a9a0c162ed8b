package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/executor"
)

// ModelAttachRequest — подключение обученной модели как слота pipe-графа.
type ModelAttachRequest struct {
	// Task — обучающий node, чья модель подключается.
	Task uuid.UUID

	// Dag — pipe-граф, к которому подключается модель.
	Dag uuid.UUID

	Slot            string
	Interface       string
	Name            string
	InterfaceParams string
}

// AttachModel создаёт граф из одного node model_add.
// Дерево файлов берётся из графа обучающего node.
func (b *Builder) AttachModel(ctx context.Context, req ModelAttachRequest) (map[string]uuid.UUID, error) {
	task, err := b.nodes.GetByID(ctx, req.Task)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", req.Task, err)
	}
	source, err := b.graphs.GetByID(ctx, task.GraphID)
	if err != nil {
		return nil, fmt.Errorf("get dag %s: %w", task.GraphID, err)
	}
	project, err := b.projects.GetByID(ctx, source.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", source.ProjectID, err)
	}

	params, err := parseParams(req.InterfaceParams)
	if err != nil {
		return nil, err
	}

	spec := engine.NewExecutorSpec(executor.ModelAdd, executor.ModelAdd)
	spec.Extra = map[string]any{
		"dag":              req.Dag.String(),
		"slot":             req.Slot,
		"interface":        req.Interface,
		"task":             req.Task.String(),
		"name":             req.Name,
		"interface_params": params,
	}

	pipeline := &engine.Pipeline{
		Info:      engine.Info{Name: executor.ModelAdd, Project: project.Name},
		Executors: []engine.ExecutorSpec{spec},
	}

	return b.Build(ctx, BuildRequest{
		Pipeline: pipeline,
		CopyFrom: &source.ID,
	})
}

// ModelStartRequest — запуск pipe из pipe-графа с моделью в слоте.
type ModelStartRequest struct {
	ModelID uuid.UUID

	// Dag — pipe-граф с секцией pipes.
	Dag uuid.UUID

	Pipe            string
	Slot            string
	Interface       string
	InterfaceParams string
}

// StartModel создаёт граф из pipe req.Pipe. Каждый executor, чей slot
// равен req.Slot, получает описание слота с моделью. После создания
// модель привязывается к pipe-графу.
func (b *Builder) StartModel(ctx context.Context, req ModelStartRequest) (map[string]uuid.UUID, error) {
	model, err := b.models.GetByID(ctx, req.ModelID)
	if err != nil {
		return nil, fmt.Errorf("get model %s: %w", req.ModelID, err)
	}
	source, err := b.graphs.GetByID(ctx, req.Dag)
	if err != nil {
		return nil, fmt.Errorf("get dag %s: %w", req.Dag, err)
	}
	project, err := b.projects.GetByID(ctx, source.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", source.ProjectID, err)
	}

	src, err := engine.Parse([]byte(source.Config))
	if err != nil {
		return nil, fmt.Errorf("parse dag %s config: %w", source.ID, err)
	}
	pipe, ok := src.Pipes[req.Pipe]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPipe, req.Pipe)
	}

	params, err := parseParams(req.InterfaceParams)
	if err != nil {
		return nil, err
	}

	executors := make([]engine.ExecutorSpec, len(pipe))
	copy(executors, pipe)
	for i := range executors {
		if slot, _ := executors[i].Extra["slot"].(string); slot != req.Slot {
			continue
		}
		extra := make(map[string]any, len(executors[i].Extra))
		for k, v := range executors[i].Extra {
			extra[k] = v
		}
		extra["slot"] = map[string]any{
			"interface":        req.Interface,
			"interface_params": params,
			"slot":             executors[i].Name,
			"name":             model.Name,
			"id":               model.ID.String(),
		}
		executors[i].Extra = extra
	}

	pipeline := &engine.Pipeline{
		Info:      engine.Info{Name: req.Pipe, Project: project.Name},
		Executors: executors,
	}

	created, err := b.Build(ctx, BuildRequest{
		Pipeline: pipeline,
		CopyFrom: &source.ID,
	})
	if err != nil {
		return nil, err
	}

	model.GraphID = &source.ID
	model.Interface = req.Interface
	model.InterfaceParams = req.InterfaceParams
	model.Slot = req.Slot
	if err := b.models.Update(ctx, model); err != nil {
		return nil, fmt.Errorf("update model %s: %w", model.ID, err)
	}

	return created, nil
}

// parseParams разбирает YAML параметров интерфейса. Пустая строка — пустая карта.
func parseParams(raw string) (map[string]any, error) {
	params := map[string]any{}
	if raw == "" {
		return params, nil
	}
	if err := yaml.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("parse interface params: %w", err)
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}
