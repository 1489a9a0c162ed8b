package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/Conveyor/internal/domain"
)

// NodeRepo — репозиторий для работы с nodes и node_edges.
type NodeRepo struct {
	db DBTX
}

// NewNodeRepo создаёт новый NodeRepo.
func NewNodeRepo(db DBTX) *NodeRepo {
	return &NodeRepo{db: db}
}

const nodeColumns = `
	id, name, executor, graph_id, gpu, cpu, memory, kind, status, debug,
	computer, computer_assigned, docker_assigned, pid, last_activity, steps,
	report_id, additional_info, started_at, finished_at, created_at
`

// Create создаёт новый node.
func (r *NodeRepo) Create(ctx context.Context, n *domain.Node) error {
	infoJSON, err := marshalInfo(n.AdditionalInfo)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO nodes (` + nodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21)
	`
	_, err = r.db.Exec(ctx, query,
		n.ID,
		n.Name,
		n.Executor,
		n.GraphID,
		n.Resources.GPU,
		n.Resources.CPU,
		n.Resources.Memory,
		int(n.Kind),
		int(n.Status),
		n.Debug,
		nullString(n.Computer),
		nullString(n.ComputerAssigned),
		nullString(n.DockerAssigned),
		nullPID(n.PID),
		n.LastActivity,
		n.Steps,
		n.ReportID,
		infoJSON,
		n.StartedAt,
		n.FinishedAt,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

// GetByID возвращает node по ID.
func (r *NodeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = $1`
	return scanNode(r.db.QueryRow(ctx, query, id))
}

// ListByGraph возвращает все node графа.
func (r *NodeRepo) ListByGraph(ctx context.Context, graphID uuid.UUID) ([]domain.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE graph_id = $1 ORDER BY created_at ASC`
	return r.list(ctx, query, graphID)
}

// ListInProgress возвращает node в статусе InProgress,
// назначенные на машину machine и контейнер image.
func (r *NodeRepo) ListInProgress(ctx context.Context, machine, image string) ([]domain.Node, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM nodes
		WHERE status = $1 AND computer_assigned = $2 AND docker_assigned = $3
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, int(domain.NodeStatusInProgress), machine, image)
}

// Update обновляет статус и поля назначения node.
func (r *NodeRepo) Update(ctx context.Context, n *domain.Node) error {
	infoJSON, err := marshalInfo(n.AdditionalInfo)
	if err != nil {
		return err
	}

	query := `
		UPDATE nodes
		SET status = $2, computer_assigned = $3, docker_assigned = $4, pid = $5,
		    last_activity = $6, report_id = $7, additional_info = $8,
		    started_at = $9, finished_at = $10
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		n.ID,
		int(n.Status),
		nullString(n.ComputerAssigned),
		nullString(n.DockerAssigned),
		nullPID(n.PID),
		n.LastActivity,
		n.ReportID,
		infoJSON,
		n.StartedAt,
		n.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch обновляет только время последней активности node.
func (r *NodeRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.Exec(ctx, `UPDATE nodes SET last_activity = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch node: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordPID записывает pid процесса executor'а и время активности,
// только пока node в статусе InProgress. Возвращает false, если node
// уже перешёл в другой статус (например, остановлен).
func (r *NodeRepo) RecordPID(ctx context.Context, id uuid.UUID, pid int, at time.Time) (bool, error) {
	result, err := r.db.Exec(ctx,
		`UPDATE nodes SET pid = $2, last_activity = $3 WHERE id = $1 AND status = $4`,
		id, pid, at, int(domain.NodeStatusInProgress))
	if err != nil {
		return false, fmt.Errorf("record pid: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ListActiveGraphs возвращает графы, у которых есть node до финального статуса.
func (r *NodeRepo) ListActiveGraphs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT graph_id
		FROM nodes
		WHERE status <= $1
		GROUP BY graph_id
		ORDER BY MIN(created_at) ASC
		LIMIT $2
	`, int(domain.NodeStatusInProgress), limit)
	if err != nil {
		return nil, fmt.Errorf("list active graphs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan graph id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddEdge записывает зависимость node от другого node.
func (r *NodeRepo) AddEdge(ctx context.Context, e domain.Edge) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO node_edges (node_id, depends_on_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, e.NodeID, e.DependsOnID)
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

// ListEdges возвращает рёбра графа.
func (r *NodeRepo) ListEdges(ctx context.Context, graphID uuid.UUID) ([]domain.Edge, error) {
	rows, err := r.db.Query(ctx, `
		SELECT e.node_id, e.depends_on_id
		FROM node_edges e
		JOIN nodes n ON n.id = e.node_id
		WHERE n.graph_id = $1
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var edges []domain.Edge
	for rows.Next() {
		var e domain.Edge
		if err := rows.Scan(&e.NodeID, &e.DependsOnID); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// --- Helpers ---

func (r *NodeRepo) list(ctx context.Context, query string, args ...any) ([]domain.Node, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

// scanNode читает node из pgx.Row; pgx.Rows тоже удовлетворяет этому интерфейсу.
func scanNode(row pgx.Row) (*domain.Node, error) {
	var n domain.Node
	var computer, computerAssigned, dockerAssigned *string
	var kind, status int
	var pid *int32
	var infoJSON []byte

	err := row.Scan(
		&n.ID,
		&n.Name,
		&n.Executor,
		&n.GraphID,
		&n.Resources.GPU,
		&n.Resources.CPU,
		&n.Resources.Memory,
		&kind,
		&status,
		&n.Debug,
		&computer,
		&computerAssigned,
		&dockerAssigned,
		&pid,
		&n.LastActivity,
		&n.Steps,
		&n.ReportID,
		&infoJSON,
		&n.StartedAt,
		&n.FinishedAt,
		&n.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan node: %w", err)
	}

	n.Kind = domain.NodeKind(kind)
	n.Status = domain.NodeStatus(status)
	n.Computer = derefString(computer)
	n.ComputerAssigned = derefString(computerAssigned)
	n.DockerAssigned = derefString(dockerAssigned)
	if pid != nil {
		n.PID = int(*pid)
	}
	if infoJSON != nil {
		if err := json.Unmarshal(infoJSON, &n.AdditionalInfo); err != nil {
			return nil, fmt.Errorf("unmarshal additional info: %w", err)
		}
	}

	return &n, nil
}

func marshalInfo(info map[string]any) ([]byte, error) {
	if info == nil {
		return nil, nil
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("marshal additional info: %w", err)
	}
	return data, nil
}

func nullPID(pid int) *int32 {
	if pid == 0 {
		return nil
	}
	p := int32(pid)
	return &p
}
