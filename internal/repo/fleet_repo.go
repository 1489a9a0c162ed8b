package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shaiso/Conveyor/internal/domain"
)

// FleetRepo — репозиторий machines, containers и usage_samples.
type FleetRepo struct {
	db DBTX
}

// NewFleetRepo создаёт новый FleetRepo.
func NewFleetRepo(db DBTX) *FleetRepo {
	return &FleetRepo{db: db}
}

// UpsertMachine создаёт или обновляет машину по имени.
func (r *FleetRepo) UpsertMachine(ctx context.Context, m *domain.Machine) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO machines (name, gpu, cpu, memory, disk, ip, port, "user")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE
		SET gpu = EXCLUDED.gpu, cpu = EXCLUDED.cpu, memory = EXCLUDED.memory,
		    disk = EXCLUDED.disk, ip = EXCLUDED.ip, port = EXCLUDED.port,
		    "user" = EXCLUDED."user"
	`, m.Name, m.GPU, m.CPU, int64(m.Memory), int64(m.Disk), m.IP, m.Port, m.User)
	if err != nil {
		return fmt.Errorf("upsert machine: %w", err)
	}
	return nil
}

// GetMachine возвращает машину по имени.
func (r *FleetRepo) GetMachine(ctx context.Context, name string) (*domain.Machine, error) {
	var m domain.Machine
	var memory, disk int64
	var usageJSON []byte

	err := r.db.QueryRow(ctx, `
		SELECT name, gpu, cpu, memory, disk, ip, port, "user", usage, last_synced
		FROM machines
		WHERE name = $1
	`, name).Scan(&m.Name, &m.GPU, &m.CPU, &memory, &disk, &m.IP, &m.Port, &m.User, &usageJSON, &m.LastSynced)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan machine: %w", err)
	}

	m.Memory = uint64(memory)
	m.Disk = uint64(disk)
	if usageJSON != nil {
		m.Usage = &domain.Usage{}
		if err := json.Unmarshal(usageJSON, m.Usage); err != nil {
			return nil, fmt.Errorf("unmarshal usage: %w", err)
		}
	}
	return &m, nil
}

// SetUsage обновляет текущую утилизацию машины.
func (r *FleetRepo) SetUsage(ctx context.Context, machine string, usage domain.Usage) error {
	usageJSON, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}

	result, err := r.db.Exec(ctx, `UPDATE machines SET usage = $2 WHERE name = $1`, machine, usageJSON)
	if err != nil {
		return fmt.Errorf("update machine usage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSynced фиксирует время последней синхронизации файлов машины.
func (r *FleetRepo) MarkSynced(ctx context.Context, machine string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE machines SET last_synced = $2 WHERE name = $1`, machine, at)
	if err != nil {
		return fmt.Errorf("update machine last_synced: %w", err)
	}
	return nil
}

// UpsertContainer создаёт или обновляет контейнер по паре (name, machine).
func (r *FleetRepo) UpsertContainer(ctx context.Context, c *domain.Container) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO containers (name, machine, ports, last_activity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, machine) DO UPDATE
		SET ports = EXCLUDED.ports, last_activity = EXCLUDED.last_activity
	`, c.Name, c.Machine, c.Ports.String(), c.LastActivity)
	if err != nil {
		return fmt.Errorf("upsert container: %w", err)
	}
	return nil
}

// Heartbeat обновляет время последней активности контейнера.
func (r *FleetRepo) Heartbeat(ctx context.Context, machine, image string, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE containers SET last_activity = $3 WHERE name = $2 AND machine = $1
	`, machine, image, at)
	if err != nil {
		return fmt.Errorf("update container heartbeat: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListContainersSince возвращает контейнеры с heartbeat не старше since.
func (r *FleetRepo) ListContainersSince(ctx context.Context, since time.Time) ([]domain.Container, error) {
	rows, err := r.db.Query(ctx, `
		SELECT name, machine, ports, last_activity
		FROM containers
		WHERE last_activity >= $1
		ORDER BY machine, name
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	defer rows.Close()

	var containers []domain.Container
	for rows.Next() {
		var c domain.Container
		var ports string
		if err := rows.Scan(&c.Name, &c.Machine, &ports, &c.LastActivity); err != nil {
			return nil, fmt.Errorf("scan container: %w", err)
		}
		if c.Ports, err = domain.ParsePortRange(ports); err != nil {
			return nil, fmt.Errorf("container %s: %w", c.Name, err)
		}
		containers = append(containers, c)
	}
	return containers, rows.Err()
}

// AddUsageSample дописывает агрегированный замер утилизации.
func (r *FleetRepo) AddUsageSample(ctx context.Context, s *domain.UsageSample) error {
	usageJSON, err := json.Marshal(s.Usage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO usage_samples (id, machine, usage, time) VALUES ($1, $2, $3, $4)
	`, s.ID, s.Machine, usageJSON, s.Time)
	if err != nil {
		return fmt.Errorf("insert usage sample: %w", err)
	}
	return nil
}
