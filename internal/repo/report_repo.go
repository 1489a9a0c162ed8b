package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
)

// ReportRepo — репозиторий для работы с reports и связями report_nodes.
type ReportRepo struct {
	db DBTX
}

// NewReportRepo создаёт новый ReportRepo.
func NewReportRepo(db DBTX) *ReportRepo {
	return &ReportRepo{db: db}
}

// Create создаёт отчёт.
func (r *ReportRepo) Create(ctx context.Context, rep *domain.Report) error {
	configJSON, err := json.Marshal(rep.Config)
	if err != nil {
		return fmt.Errorf("marshal report config: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO reports (id, name, project_id, config, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rep.ID, rep.Name, rep.ProjectID, configJSON, rep.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// LinkNode связывает отчёт с node.
func (r *ReportRepo) LinkNode(ctx context.Context, reportID, nodeID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO report_nodes (report_id, node_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, reportID, nodeID)
	if err != nil {
		return fmt.Errorf("link report node: %w", err)
	}
	return nil
}
