package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/Conveyor/internal/domain"
)

// GraphRepo — репозиторий для работы с graphs.
type GraphRepo struct {
	db DBTX
}

// NewGraphRepo создаёт новый GraphRepo.
func NewGraphRepo(db DBTX) *GraphRepo {
	return &GraphRepo{db: db}
}

// Create создаёт новый граф.
func (r *GraphRepo) Create(ctx context.Context, g *domain.Graph) error {
	query := `
		INSERT INTO graphs (id, name, config, project_id, docker_img, kind, report_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		g.ID,
		g.Name,
		g.Config,
		g.ProjectID,
		nullString(g.DockerImage),
		int(g.Kind),
		g.ReportID,
		g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert graph: %w", err)
	}
	return nil
}

// GetByID возвращает граф по ID.
func (r *GraphRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Graph, error) {
	query := `
		SELECT id, name, config, project_id, docker_img, kind, report_id, created_at
		FROM graphs
		WHERE id = $1
	`
	var g domain.Graph
	var image *string
	var kind int

	err := r.db.QueryRow(ctx, query, id).Scan(
		&g.ID,
		&g.Name,
		&g.Config,
		&g.ProjectID,
		&image,
		&kind,
		&g.ReportID,
		&g.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan graph: %w", err)
	}
	g.Kind = domain.GraphKind(kind)
	if image != nil {
		g.DockerImage = *image
	}
	return &g, nil
}

// --- Helpers ---

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
