package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/Conveyor/internal/domain"
)

// ProjectRepo — репозиторий для работы с projects.
type ProjectRepo struct {
	db DBTX
}

// NewProjectRepo создаёт новый ProjectRepo.
func NewProjectRepo(db DBTX) *ProjectRepo {
	return &ProjectRepo{db: db}
}

// Create создаёт проект. Имя уникально.
func (r *ProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	_, err := r.db.Exec(ctx, `INSERT INTO projects (id, name) VALUES ($1, $2)`, p.ID, p.Name)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetByName возвращает проект по имени.
func (r *ProjectRepo) GetByName(ctx context.Context, name string) (*domain.Project, error) {
	return r.scan(r.db.QueryRow(ctx, `SELECT id, name FROM projects WHERE name = $1`, name))
}

// GetByID возвращает проект по ID.
func (r *ProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	return r.scan(r.db.QueryRow(ctx, `SELECT id, name FROM projects WHERE id = $1`, id))
}

func (r *ProjectRepo) scan(row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}
