package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"exam-grading-service/internal/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RankingStore implements app.RankingStore on top of bun.
type RankingStore struct {
	db  bun.IDB
	now func() time.Time
}

func NewRankingStore(db bun.IDB) *RankingStore {
	return &RankingStore{db: db, now: time.Now}
}

const upsertRankingSQL = `
INSERT INTO rankings (id, user_id, exam_id, user_name, exam_name, score, total_questions, percentage, "rank", completed_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
ON CONFLICT (user_id, exam_id) DO UPDATE SET
	user_name = EXCLUDED.user_name,
	exam_name = EXCLUDED.exam_name,
	score = EXCLUDED.score,
	total_questions = EXCLUDED.total_questions,
	percentage = EXCLUDED.percentage,
	completed_at = EXCLUDED.completed_at,
	updated_at = EXCLUDED.updated_at
RETURNING id`

// Upsert writes the ranking of (user, exam). New rows get placeholder rank 1 and existing rows
// keep their rank until the exam is recalculated.
func (s *RankingStore) Upsert(ctx context.Context, in domain.RankingUpsert) (domain.Ranking, error) {
	var id string
	err := s.db.QueryRowContext(ctx, upsertRankingSQL,
		uuid.NewString(), in.UserID, in.ExamID, in.UserName, in.ExamName,
		in.Score, in.TotalQuestions, in.Percentage, in.CompletedAt.UTC(), s.now().UTC(),
	).Scan(&id)
	if err != nil {
		return domain.Ranking{}, fmt.Errorf("upsert ranking: %w", err)
	}
	return s.Get(ctx, in.UserID, in.ExamID)
}

func (s *RankingStore) Get(ctx context.Context, userID, examID string) (domain.Ranking, error) {
	var row rankingRow
	err := s.db.NewSelect().
		Model(&row).
		Where("r.user_id = ?", userID).
		Where("r.exam_id = ?", examID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ranking{}, domain.ErrRankingNotFound
	}
	if err != nil {
		return domain.Ranking{}, fmt.Errorf("get ranking: %w", err)
	}
	return row.toDomain(), nil
}

func (s *RankingStore) ListByExam(ctx context.Context, examID string) ([]domain.Ranking, error) {
	var rows []rankingRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("r.exam_id = ?", examID).
		OrderExpr(`r."rank" ASC, r.user_id ASC`).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rankings: %w", err)
	}
	out := make([]domain.Ranking, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// BulkSetRanks rewrites the rank of every listed row of the exam. Callers pass diffs only.
func (s *RankingStore) BulkSetRanks(ctx context.Context, examID string, ranks []domain.RankAssignment) error {
	now := s.now().UTC()
	for _, a := range ranks {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE rankings SET "rank" = ?, updated_at = ? WHERE id = ? AND exam_id = ?`,
			a.Rank, now, a.RankingID, examID,
		); err != nil {
			return fmt.Errorf("set rank of %s: %w", a.RankingID, err)
		}
	}
	return nil
}

func (s *RankingStore) Delete(ctx context.Context, userID, examID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rankings WHERE user_id = ? AND exam_id = ?`, userID, examID)
	if err != nil {
		return fmt.Errorf("delete ranking: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrRankingNotFound
	}
	return nil
}

// LockExam takes a transaction-scoped advisory lock on Postgres so recalculations of one exam
// run one after another. SQLite already serializes writers.
func (s *RankingStore) LockExam(ctx context.Context, examID string) error {
	if !isPostgres(s.db) {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext(?))`, examID); err != nil {
		return fmt.Errorf("lock exam %s: %w", examID, err)
	}
	return nil
}
