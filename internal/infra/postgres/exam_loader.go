package postgres

import (
	"context"
	"errors"
	"fmt"

	"exam-grading-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ExamLoader loads exam snapshots from the catalog tables in Postgres.
type ExamLoader struct {
	pool *pgxpool.Pool
}

func NewExamLoader(pool *pgxpool.Pool) *ExamLoader {
	return &ExamLoader{pool: pool}
}

func (l *ExamLoader) LoadExam(ctx context.Context, examID string) (domain.Exam, error) {
	exam := domain.Exam{ID: examID}
	err := l.pool.QueryRow(ctx, `SELECT title, published FROM exams WHERE id=$1`, examID).Scan(&exam.Title, &exam.Published)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("load exam: %w", err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT q.id, q.correct_option, q.positive_marks, q.negative_marks, q.subject, q.topic, q.difficulty,
		       eq.marks, eq.sort_order
		FROM exam_questions eq
		JOIN questions q ON q.id = eq.question_id
		WHERE eq.exam_id=$1
		ORDER BY eq.sort_order, q.id`, examID)
	if err != nil {
		return domain.Exam{}, fmt.Errorf("load exam questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eq         domain.ExamQuestion
			difficulty string
		)
		if err := rows.Scan(
			&eq.Question.ID,
			&eq.Question.CorrectOption,
			&eq.Question.PositiveMarks,
			&eq.Question.NegativeMarks,
			&eq.Question.Subject,
			&eq.Question.Topic,
			&difficulty,
			&eq.Marks,
			&eq.Order,
		); err != nil {
			return domain.Exam{}, fmt.Errorf("scan exam question: %w", err)
		}
		eq.Question.Difficulty = domain.Difficulty(difficulty)
		exam.Questions = append(exam.Questions, eq)
	}
	if err := rows.Err(); err != nil {
		return domain.Exam{}, fmt.Errorf("load exam questions: %w", err)
	}
	return exam, nil
}
