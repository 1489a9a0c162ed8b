package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/storage"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Переменные окружения процесса executor'а.
const (
	EnvNodeID  = "CONVEYOR_NODE_ID"
	EnvGraphID = "CONVEYOR_GRAPH_ID"
)

// handleExecute обрабатывает node.execute.
func (w *Worker) handleExecute(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.NodeExecutePayload](&delivery.Message)
	if err != nil {
		return mq.Permanent(err)
	}

	err = w.Execute(ctx, payload.NodeID, payload.Repeat)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNodeFinished):
		w.logger.Debug("node not executed", "node_id", payload.NodeID, "reason", err)
		return nil
	case errors.Is(err, ErrNodeNotFound):
		return mq.Permanent(err)
	default:
		return err
	}
}

// Execute выполняет node.
//
// Node в финальном статусе не выполняется (ErrNodeFinished). Ошибка
// выполнения переводит node в Failed и не возвращается: node обработан.
// Возвращаются только ошибки, после которых статус node записать не удалось.
func (w *Worker) Execute(ctx context.Context, nodeID uuid.UUID, repeat int) error {
	w.exec.Lock()
	defer w.exec.Unlock()

	node, err := w.nodes.GetByID(ctx, nodeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
		}
		return fmt.Errorf("get node: %w", err)
	}
	if node.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrNodeFinished, nodeID, node.Status)
	}

	node.MarkInProgress(w.machine, w.image, w.pid, w.clock.Now())
	if err := w.nodes.Update(ctx, node); err != nil {
		return fmt.Errorf("update node to in_progress: %w", err)
	}

	logger := telemetry.WithGraphID(telemetry.WithNodeID(w.logger, node.ID.String()), node.GraphID.String())
	ctx = telemetry.WithLogger(ctx, logger)
	logger.Info("node started", "executor", node.Executor, "debug", node.Debug)

	ws, err := w.prepare(ctx, node)
	if errors.Is(err, storage.ErrProvisionFailed) && repeat > 0 {
		return w.resubmit(ctx, node, repeat-1, err)
	}
	if err == nil {
		err = w.run(ctx, ws)
	}
	return w.finish(ctx, node.ID, err)
}

// prepare материализует рабочее пространство node.
// Debug node выполняется из каталога воркера.
func (w *Worker) prepare(ctx context.Context, node *domain.Node) (*storage.Workspace, error) {
	if node.Debug {
		return w.workspaces.Attach(ctx, node.ID, w.debugDir)
	}
	return w.workspaces.Materialize(ctx, node.ID)
}

// resubmit возвращает node в очередь после неудачной установки библиотек.
// Повтор уходит в личную очередь, чтобы node выполнился в этом же окружении.
func (w *Worker) resubmit(ctx context.Context, node *domain.Node, repeat int, cause error) error {
	telemetry.FromContext(ctx).Warn("library provisioning failed, resubmitting node",
		"queue", w.personal,
		"repeat", repeat,
		"error", cause,
	)

	node.Status = domain.NodeStatusQueued
	if err := w.nodes.Update(ctx, node); err != nil {
		return fmt.Errorf("update node to queued: %w", err)
	}
	if err := w.events.PublishExecute(ctx, w.personal, node.ID, repeat); err != nil {
		return w.finish(ctx, node.ID, fmt.Errorf("resubmit: %w", err))
	}
	return nil
}

// run выполняет executor рабочего пространства.
func (w *Worker) run(ctx context.Context, ws *storage.Workspace) error {
	if ws.Executor.Name == executor.ModelAdd {
		return w.addModel(ctx, ws)
	}

	node := ws.Node
	env := []string{
		EnvNodeID + "=" + node.ID.String(),
		EnvGraphID + "=" + node.GraphID.String(),
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hb sync.WaitGroup
	defer func() {
		stopHeartbeat()
		hb.Wait()
	}()

	return w.launcher.Launch(runCtx, ws, env, func(pid int) {
		logger := telemetry.FromContext(ctx)
		recorded, err := w.nodes.RecordPID(ctx, node.ID, pid, w.clock.Now())
		if err != nil {
			logger.Warn("failed to record executor pid", "pid", pid, "error", err)
		} else if !recorded {
			// node остановили во время подготовки, pid до orchestrator не дошёл
			logger.Info("node left in_progress before launch, killing executor", "pid", pid)
			cancelRun()
			return
		}

		hb.Add(1)
		go func() {
			defer hb.Done()
			w.beat(hbCtx, node.ID)
		}()
	})
}

// beat отмечает активность node, пока работает процесс executor'а.
func (w *Worker) beat(ctx context.Context, nodeID uuid.UUID) {
	ticker := w.clock.Ticker(w.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.nodes.Touch(ctx, nodeID, w.clock.Now()); err != nil && ctx.Err() == nil {
				telemetry.FromContext(ctx).Warn("failed to touch node", "error", err)
			}
		}
	}
}

// addModel регистрирует модель обучающего node в pipe-графе.
func (w *Worker) addModel(ctx context.Context, ws *storage.Workspace) error {
	spec, ok := ws.Pipeline.Executor(ws.Node.Executor)
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrExecutorNotFound, ws.Node.Executor)
	}

	name, _ := spec.Extra["name"].(string)
	slot, _ := spec.Extra["slot"].(string)
	iface, _ := spec.Extra["interface"].(string)
	dagRaw, _ := spec.Extra["dag"].(string)
	if name == "" || dagRaw == "" {
		return fmt.Errorf("%w: name and dag are required", ErrInvalidModelSpec)
	}
	dag, err := uuid.Parse(dagRaw)
	if err != nil {
		return fmt.Errorf("%w: dag %q: %v", ErrInvalidModelSpec, dagRaw, err)
	}

	var params string
	if raw, ok := spec.Extra["interface_params"]; ok && raw != nil {
		out, err := yaml.Marshal(raw)
		if err != nil {
			return fmt.Errorf("%w: interface_params: %v", ErrInvalidModelSpec, err)
		}
		params = string(out)
	}

	model := &domain.Model{
		ID:              uuid.New(),
		Name:            name,
		ProjectID:       ws.Graph.ProjectID,
		GraphID:         &dag,
		Slot:            slot,
		Interface:       iface,
		InterfaceParams: params,
		CreatedAt:       w.clock.Now(),
	}
	if err := w.models.Create(ctx, model); err != nil {
		return fmt.Errorf("create model: %w", err)
	}

	telemetry.FromContext(ctx).Info("model added", "model_id", model.ID, "name", name)
	return nil
}

// finish выставляет финальный статус по свежей копии node и публикует
// node.finished. Node, уже остановленный или признанный упавшим, не меняется.
func (w *Worker) finish(ctx context.Context, nodeID uuid.UUID, execErr error) error {
	node, err := w.nodes.GetByID(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("get node: %w", err)
	}

	logger := telemetry.FromContext(ctx)
	now := w.clock.Now()
	switch {
	case node.Status.IsTerminal():
		logger.Info("node already finished", "status", node.Status)
	case execErr != nil:
		node.MarkFailed(now)
		if err := w.nodes.Update(ctx, node); err != nil {
			return fmt.Errorf("update node to failed: %w", err)
		}
		logger.Error("node failed", "error", execErr)
	default:
		node.MarkSuccess(now)
		if err := w.nodes.Update(ctx, node); err != nil {
			return fmt.Errorf("update node to success: %w", err)
		}
		logger.Info("node succeeded")
	}

	payload := mq.NodeFinishedPayload{NodeID: node.ID, GraphID: node.GraphID, Status: node.Status.String()}
	if err := w.events.PublishFinished(ctx, payload); err != nil {
		// статус уже в БД, orchestrator подхватит его опросом
		logger.Warn("failed to publish node.finished", "error", err)
	}
	return nil
}
