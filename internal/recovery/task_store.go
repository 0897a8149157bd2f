package recovery

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type taskExec interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TaskStore writes routing outcomes onto intake_tasks rows.
type TaskStore struct {
	db taskExec
}

func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	if pool == nil {
		panic("recovery: pgx pool required")
	}
	return &TaskStore{db: pool}
}

func newTaskStoreWithExec(exec taskExec) *TaskStore {
	if exec == nil {
		panic("recovery: exec required")
	}
	return &TaskStore{db: exec}
}

var _ TaskUpdater = (*TaskStore)(nil)

func (s *TaskStore) UpdateStatus(ctx context.Context, taskID string, status string) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE intake_tasks
		SET status = $2, updated_at = now()
		WHERE id = $1`, taskID, status)
	if err != nil {
		return fmt.Errorf("recovery: update task status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("recovery: task %s not found", taskID)
	}
	return nil
}
