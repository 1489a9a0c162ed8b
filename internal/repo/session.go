package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Session — набор репозиториев поверх одного пула соединений.
//
// Каждый цикл supervisor'а владеет своей сессией. После ошибки
// соединения сессию закрывают и открывают новую.
type Session struct {
	pool *pgxpool.Pool

	Projects *ProjectRepo
	Graphs   *GraphRepo
	Nodes    *NodeRepo
	Reports  *ReportRepo
	Models   *ModelRepo
	Content  *ContentStore
	Fleet    *FleetRepo
}

// NewSession собирает репозитории поверх db.
func NewSession(db DBTX) *Session {
	return &Session{
		Projects: NewProjectRepo(db),
		Graphs:   NewGraphRepo(db),
		Nodes:    NewNodeRepo(db),
		Reports:  NewReportRepo(db),
		Models:   NewModelRepo(db),
		Content:  NewContentStore(db),
		Fleet:    NewFleetRepo(db),
	}
}

// OpenSession открывает отдельный пул и собирает на нём сессию.
func OpenSession(ctx context.Context, dsn string) (*Session, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := NewSession(pool)
	s.pool = pool
	return s, nil
}

// Pool возвращает пул сессии (nil, если сессия собрана поверх чужого DBTX).
func (s *Session) Pool() *pgxpool.Pool {
	return s.pool
}

// Close закрывает пул сессии.
func (s *Session) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
