package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
)

// handleNodeFinished обрабатывает node.finished: граф node проверяется
// сразу, не дожидаясь polling.
func (o *Orchestrator) handleNodeFinished(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.NodeFinishedPayload](&delivery.Message)
	if err != nil {
		return mq.Permanent(err)
	}

	o.logger.Debug("received node.finished event",
		"node_id", payload.NodeID,
		"dag_id", payload.GraphID,
		"status", payload.Status,
	)

	err = o.ProcessGraph(ctx, payload.GraphID)
	switch {
	case err == nil, errors.Is(err, ErrGraphBusy):
		return nil
	case errors.Is(err, ErrGraphNotFound), errors.Is(err, ErrBrokenGraph):
		return mq.Permanent(err)
	default:
		return err
	}
}

// ProcessGraph выполняет один проход по графу: пропускает node
// с неуспешными зависимостями и отправляет готовые node.
func (o *Orchestrator) ProcessGraph(ctx context.Context, graphID uuid.UUID) error {
	if !o.acquire(graphID) {
		return ErrGraphBusy
	}
	defer o.release(graphID)

	state, err := o.loadState(ctx, graphID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, node := range state.Blocked() {
		node.MarkSkipped(now)
		if err := o.nodes.Update(ctx, node); err != nil {
			return fmt.Errorf("update node %s to skipped: %w", node.ID, err)
		}
		o.logger.Info("node skipped", "node_id", node.ID, "dag_id", graphID)
	}

	ready := state.Ready()
	if len(ready) == 0 {
		if st := state.Stats(); st.Finished {
			o.logger.Debug("dag finished", "dag_id", graphID, "success", st.Success, "failed", st.Failed)
		}
		return nil
	}

	containers, err := o.fleet.Online(ctx, o.onlineWithin)
	if err != nil {
		return fmt.Errorf("list online containers: %w", err)
	}
	sort.Slice(containers, func(i, j int) bool {
		if containers[i].Machine != containers[j].Machine {
			return containers[i].Machine < containers[j].Machine
		}
		return containers[i].Name < containers[j].Name
	})

	for _, node := range ready {
		if err := o.dispatch(ctx, state.Graph, node, containers); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) loadState(ctx context.Context, graphID uuid.UUID) (*GraphState, error) {
	graph, err := o.graphs.GetByID(ctx, graphID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, graphID)
		}
		return nil, fmt.Errorf("get dag: %w", err)
	}
	nodes, err := o.nodes.ListByGraph(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	edges, err := o.nodes.ListEdges(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return NewGraphState(graph, nodes, edges)
}

// dispatch назначает node контейнер и отправляет node.execute.
// Node без подходящего контейнера остаётся NotRan до следующего прохода.
func (o *Orchestrator) dispatch(ctx context.Context, graph *domain.Graph, node *domain.Node, containers []domain.Container) error {
	image := imageOf(graph)

	candidates := make([]domain.Container, 0, len(containers))
	for _, c := range containers {
		if c.Name != image {
			continue
		}
		if node.Computer != "" && c.Machine != node.Computer {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		o.logger.Debug("no online container for node",
			"node_id", node.ID,
			"image", image,
			"computer", node.Computer,
		)
		return nil
	}

	target := o.next(image, candidates)
	node.ComputerAssigned = target.Machine
	node.DockerAssigned = target.Name
	node.Status = domain.NodeStatusQueued
	if err := o.nodes.Update(ctx, node); err != nil {
		return fmt.Errorf("update node %s to queued: %w", node.ID, err)
	}

	queue := config.WorkerQueue(target.Machine, image)
	if err := o.commands.PublishExecute(ctx, queue, node.ID, o.repeat); err != nil {
		node.Status = domain.NodeStatusNotRan
		node.ComputerAssigned = ""
		node.DockerAssigned = ""
		if uerr := o.nodes.Update(ctx, node); uerr != nil {
			o.logger.Error("failed to revert node after publish error", "node_id", node.ID, "error", uerr)
		}
		return fmt.Errorf("publish node %s: %w", node.ID, err)
	}

	o.logger.Info("node dispatched", "node_id", node.ID, "dag_id", graph.ID, "queue", queue)
	return nil
}

// StopNode останавливает node и возвращает его итоговый статус.
//
// Завершённый node не меняется. NotRan становится Skipped, остальные —
// Stopped. Если у node есть процесс, supervisor машины получает
// команду завершить его.
func (o *Orchestrator) StopNode(ctx context.Context, nodeID uuid.UUID) (domain.NodeStatus, error) {
	node, err := o.nodes.GetByID(ctx, nodeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
		}
		return 0, fmt.Errorf("get node: %w", err)
	}
	if node.Status.IsTerminal() {
		return node.Status, nil
	}

	graph, err := o.graphs.GetByID(ctx, node.GraphID)
	if err != nil {
		return 0, fmt.Errorf("get dag %s: %w", node.GraphID, err)
	}

	now := time.Now().UTC()
	if node.Status == domain.NodeStatusNotRan {
		node.MarkSkipped(now)
	} else {
		node.MarkStopped(now)
	}
	// статус пишется раньше kill: воркер не должен успеть записать Failed
	if err := o.nodes.Update(ctx, node); err != nil {
		return 0, fmt.Errorf("update node: %w", err)
	}

	if node.PID > 0 && node.ComputerAssigned != "" {
		queue := config.SupervisorQueue(node.ComputerAssigned, imageOf(graph))
		if err := o.commands.PublishKill(ctx, queue, node.PID); err != nil {
			o.logger.Error("failed to send kill", "node_id", node.ID, "pid", node.PID, "queue", queue, "error", err)
		}
	}

	o.logger.Info("node stopped", "node_id", node.ID, "status", node.Status)
	return node.Status, nil
}

// StopGraph останавливает все node графа.
func (o *Orchestrator) StopGraph(ctx context.Context, graphID uuid.UUID) error {
	nodes, err := o.nodes.ListByGraph(ctx, graphID)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	var errs []error
	for i := range nodes {
		if _, err := o.StopNode(ctx, nodes[i].ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveNode рассылает удаление рабочего пространства node
// supervisor'ам всех контейнеров флота.
func (o *Orchestrator) RemoveNode(ctx context.Context, nodeID uuid.UUID) error {
	containers, err := o.fleet.Online(ctx, o.onlineWithin)
	if err != nil {
		return fmt.Errorf("list online containers: %w", err)
	}
	return o.remove(ctx, containers, nodeID)
}

// RemoveGraph рассылает удаление рабочих пространств всех node графа.
func (o *Orchestrator) RemoveGraph(ctx context.Context, graphID uuid.UUID) error {
	nodes, err := o.nodes.ListByGraph(ctx, graphID)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	containers, err := o.fleet.Online(ctx, o.onlineWithin)
	if err != nil {
		return fmt.Errorf("list online containers: %w", err)
	}

	var errs []error
	for i := range nodes {
		if err := o.remove(ctx, containers, nodes[i].ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) remove(ctx context.Context, containers []domain.Container, nodeID uuid.UUID) error {
	path := filepath.Join(o.taskFolder, nodeID.String())

	var errs []error
	for _, c := range containers {
		queue := config.SupervisorQueue(c.Machine, c.Name)
		if err := o.commands.PublishRemove(ctx, queue, path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s via %s: %w", path, queue, err))
		}
	}
	return errors.Join(errs...)
}

func imageOf(graph *domain.Graph) string {
	if graph.DockerImage == "" {
		return "default"
	}
	return graph.DockerImage
}
