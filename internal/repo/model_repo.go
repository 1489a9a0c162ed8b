package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/Conveyor/internal/domain"
)

// ModelRepo — репозиторий для работы с models.
type ModelRepo struct {
	db DBTX
}

// NewModelRepo создаёт новый ModelRepo.
func NewModelRepo(db DBTX) *ModelRepo {
	return &ModelRepo{db: db}
}

// Create создаёт модель.
func (r *ModelRepo) Create(ctx context.Context, m *domain.Model) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO models (id, name, project_id, graph_id, interface, interface_params, slot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		m.ID,
		m.Name,
		m.ProjectID,
		m.GraphID,
		nullString(m.Interface),
		nullString(m.InterfaceParams),
		nullString(m.Slot),
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

// GetByID возвращает модель по ID.
func (r *ModelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Model, error) {
	var m domain.Model
	var iface, params, slot *string

	err := r.db.QueryRow(ctx, `
		SELECT id, name, project_id, graph_id, interface, interface_params, slot, created_at
		FROM models
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.ProjectID, &m.GraphID, &iface, &params, &slot, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan model: %w", err)
	}

	m.Interface = derefString(iface)
	m.InterfaceParams = derefString(params)
	m.Slot = derefString(slot)
	return &m, nil
}

// Update обновляет привязку модели к графу и интерфейсу.
func (r *ModelRepo) Update(ctx context.Context, m *domain.Model) error {
	result, err := r.db.Exec(ctx, `
		UPDATE models
		SET graph_id = $2, interface = $3, interface_params = $4, slot = $5
		WHERE id = $1
	`, m.ID, m.GraphID, nullString(m.Interface), nullString(m.InterfaceParams), nullString(m.Slot))
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Repoint перенаправляет все модели проекта с данным именем графа на новый граф.
// Сопоставление идёт по имени графа, а не по его ID.
func (r *ModelRepo) Repoint(ctx context.Context, projectID uuid.UUID, graphName string, graphID uuid.UUID) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE models m
		SET graph_id = $3
		FROM graphs g
		WHERE m.graph_id = g.id AND m.project_id = $1 AND g.name = $2 AND g.id <> $3
	`, projectID, graphName, graphID)
	if err != nil {
		return 0, fmt.Errorf("repoint models: %w", err)
	}
	return result.RowsAffected(), nil
}
