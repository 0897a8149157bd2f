package recovery

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ReviewStore persists review tasks in the manual_review_queue table.
type ReviewStore struct {
	db *sql.DB
}

func NewReviewStore(db *sql.DB) *ReviewStore {
	return &ReviewStore{db: db}
}

var _ ReviewCreator = (*ReviewStore)(nil)

// Create files one review task. ID, status, and creation time are filled
// when the caller leaves them zero.
func (s *ReviewStore) Create(ctx context.Context, task ReviewTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = ReviewStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manual_review_queue (id, intake_task_id, review_type, priority, attempted_strategies, metadata, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		task.ID, task.IntakeTaskID, task.ReviewType, string(task.Priority),
		pq.Array(task.AttemptedStrategies), []byte(task.Metadata), task.Status, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("recovery: insert review task: %w", err)
	}
	return nil
}

// ListPending returns open review tasks, most urgent first, oldest first
// within a priority.
func (s *ReviewStore) ListPending(ctx context.Context, limit int) ([]ReviewTask, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, intake_task_id, review_type, priority, attempted_strategies, metadata, status, created_at, resolved_at
		FROM manual_review_queue
		WHERE status = 'pending'
		ORDER BY CASE priority
			WHEN 'urgent' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			ELSE 3
		END, created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recovery: list pending reviews: %w", err)
	}
	defer rows.Close()

	var out []ReviewTask
	for rows.Next() {
		var task ReviewTask
		var priority string
		var metadata []byte
		var resolved sql.NullTime
		if err := rows.Scan(&task.ID, &task.IntakeTaskID, &task.ReviewType, &priority,
			pq.Array(&task.AttemptedStrategies), &metadata, &task.Status, &task.CreatedAt, &resolved); err != nil {
			return nil, fmt.Errorf("recovery: scan review task: %w", err)
		}
		task.Priority = Priority(priority)
		task.Metadata = metadata
		if resolved.Valid {
			t := resolved.Time
			task.ResolvedAt = &t
		}
		if task.AttemptedStrategies == nil {
			task.AttemptedStrategies = []string{}
		}
		out = append(out, task)
	}
	if out == nil {
		out = []ReviewTask{}
	}
	return out, rows.Err()
}

// Resolve closes one review task. Returns false when the task does not
// exist or was already resolved.
func (s *ReviewStore) Resolve(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE manual_review_queue
		SET status = 'resolved', resolved_at = now()
		WHERE id = $1 AND status <> 'resolved'`, id)
	if err != nil {
		return false, fmt.Errorf("recovery: resolve review task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// PendingCounts reports open review tasks grouped by priority.
func (s *ReviewStore) PendingCounts(ctx context.Context) (map[Priority]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT priority, COUNT(*)
		FROM manual_review_queue
		WHERE status = 'pending'
		GROUP BY priority`)
	if err != nil {
		return nil, fmt.Errorf("recovery: count pending reviews: %w", err)
	}
	defer rows.Close()

	counts := make(map[Priority]int64)
	for rows.Next() {
		var priority string
		var count int64
		if err := rows.Scan(&priority, &count); err != nil {
			return nil, fmt.Errorf("recovery: scan review counts: %w", err)
		}
		counts[Priority(priority)] = count
	}
	return counts, rows.Err()
}
