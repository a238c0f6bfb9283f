package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"exam-grading-service/internal/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SubmissionStore implements app.SubmissionStore on top of bun. It runs against whatever IDB it
// was built with: the pool for single statements or a bun.Tx inside a unit of work.
type SubmissionStore struct {
	db bun.IDB
}

func NewSubmissionStore(db bun.IDB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

const upsertDraftSQL = `
INSERT INTO submissions (id, user_id, exam_id, answers, statuses, score, total_questions, time_spent, is_submitted, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 0, 0, ?, FALSE, ?, ?)
ON CONFLICT (user_id, exam_id) DO UPDATE SET
	answers = EXCLUDED.answers,
	statuses = EXCLUDED.statuses,
	time_spent = EXCLUDED.time_spent,
	updated_at = EXCLUDED.updated_at
WHERE submissions.is_submitted = FALSE
RETURNING id`

// UpsertDraft inserts or refreshes a draft. A submitted row is left alone and reported as
// ErrAlreadySubmitted.
func (s *SubmissionStore) UpsertDraft(ctx context.Context, d domain.Draft) (domain.Submission, error) {
	answers, statuses, err := encodeSheet(d.Answers, d.Statuses)
	if err != nil {
		return domain.Submission{}, err
	}

	var id string
	err = s.db.QueryRowContext(ctx, upsertDraftSQL,
		uuid.NewString(), d.UserID, d.ExamID, answers, statuses, d.TimeSpent, d.SavedAt.UTC(), d.SavedAt.UTC(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, domain.ErrAlreadySubmitted
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("upsert draft: %w", err)
	}
	return s.Get(ctx, d.UserID, d.ExamID)
}

const finalizeSQL = `
INSERT INTO submissions (id, user_id, exam_id, answers, statuses, score, total_questions, time_spent, is_submitted, completed_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, TRUE, ?, ?, ?)
ON CONFLICT (user_id, exam_id) DO UPDATE SET
	answers = EXCLUDED.answers,
	statuses = EXCLUDED.statuses,
	score = EXCLUDED.score,
	total_questions = EXCLUDED.total_questions,
	time_spent = EXCLUDED.time_spent,
	is_submitted = TRUE,
	completed_at = EXCLUDED.completed_at,
	updated_at = EXCLUDED.updated_at
WHERE submissions.is_submitted = FALSE
RETURNING id`

// Finalize promotes a draft, or inserts a final row directly. The duplicate check and the write
// are one statement, so two racing finalizations cannot both succeed.
func (s *SubmissionStore) Finalize(ctx context.Context, f domain.FinalSubmission) (domain.Submission, error) {
	answers, statuses, err := encodeSheet(f.Answers, f.Statuses)
	if err != nil {
		return domain.Submission{}, err
	}
	completedAt := f.CompletedAt.UTC()

	var id string
	err = s.db.QueryRowContext(ctx, finalizeSQL,
		uuid.NewString(), f.UserID, f.ExamID, answers, statuses,
		f.Score, f.TotalQuestions, f.TimeSpent, completedAt, completedAt, completedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, domain.ErrDuplicateSubmission
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("finalize submission: %w", err)
	}
	return s.Get(ctx, f.UserID, f.ExamID)
}

func (s *SubmissionStore) Get(ctx context.Context, userID, examID string) (domain.Submission, error) {
	var row submissionRow
	err := s.db.NewSelect().
		Model(&row).
		Where("s.user_id = ?", userID).
		Where("s.exam_id = ?", examID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("get submission: %w", err)
	}
	return row.toDomain(), nil
}

func (s *SubmissionStore) Delete(ctx context.Context, userID, examID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE user_id = ? AND exam_id = ?`, userID, examID)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrSubmissionNotFound
	}
	return nil
}

func encodeSheet(answers map[string]int, statuses map[string]domain.QuestionStatus) (string, string, error) {
	if answers == nil {
		answers = map[string]int{}
	}
	if statuses == nil {
		statuses = map[string]domain.QuestionStatus{}
	}
	a, err := json.Marshal(answers)
	if err != nil {
		return "", "", fmt.Errorf("encode answers: %w", err)
	}
	st, err := json.Marshal(statuses)
	if err != nil {
		return "", "", fmt.Errorf("encode statuses: %w", err)
	}
	return string(a), string(st), nil
}
