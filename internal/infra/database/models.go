package database

import (
	"time"

	"exam-grading-service/internal/domain"
	"github.com/uptrace/bun"
)

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions,alias:s"`

	ID             string                           `bun:"id,pk"`
	UserID         string                           `bun:"user_id,notnull"`
	ExamID         string                           `bun:"exam_id,notnull"`
	Answers        map[string]int                   `bun:"answers"`
	Statuses       map[string]domain.QuestionStatus `bun:"statuses"`
	Score          int                              `bun:"score,notnull"`
	TotalQuestions int                              `bun:"total_questions,notnull"`
	TimeSpent      int                              `bun:"time_spent,notnull"`
	IsSubmitted    bool                             `bun:"is_submitted,notnull"`
	CompletedAt    *time.Time                       `bun:"completed_at"`
	CreatedAt      time.Time                        `bun:"created_at,notnull"`
	UpdatedAt      time.Time                        `bun:"updated_at,notnull"`
}

func (r submissionRow) toDomain() domain.Submission {
	answers := r.Answers
	if answers == nil {
		answers = map[string]int{}
	}
	statuses := r.Statuses
	if statuses == nil {
		statuses = map[string]domain.QuestionStatus{}
	}
	sub := domain.Submission{
		ID:             r.ID,
		UserID:         r.UserID,
		ExamID:         r.ExamID,
		Answers:        answers,
		Statuses:       statuses,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		TimeSpent:      r.TimeSpent,
		IsSubmitted:    r.IsSubmitted,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.CompletedAt != nil {
		completedAt := r.CompletedAt.UTC()
		sub.CompletedAt = &completedAt
	}
	return sub
}

type rankingRow struct {
	bun.BaseModel `bun:"table:rankings,alias:r"`

	ID             string    `bun:"id,pk"`
	UserID         string    `bun:"user_id,notnull"`
	ExamID         string    `bun:"exam_id,notnull"`
	UserName       string    `bun:"user_name,notnull"`
	ExamName       string    `bun:"exam_name,notnull"`
	Score          int       `bun:"score,notnull"`
	TotalQuestions int       `bun:"total_questions,notnull"`
	Percentage     int       `bun:"percentage,notnull"`
	Rank           int       `bun:"rank,notnull"`
	CompletedAt    time.Time `bun:"completed_at,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}

func (r rankingRow) toDomain() domain.Ranking {
	return domain.Ranking{
		ID:             r.ID,
		UserID:         r.UserID,
		ExamID:         r.ExamID,
		UserName:       r.UserName,
		ExamName:       r.ExamName,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		Percentage:     r.Percentage,
		Rank:           r.Rank,
		CompletedAt:    r.CompletedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}
