package migrations

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type submissionTable struct {
	bun.BaseModel `bun:"table:submissions"`

	ID             string         `bun:"id,pk"`
	UserID         string         `bun:"user_id,notnull,unique:submissions_user_exam"`
	ExamID         string         `bun:"exam_id,notnull,unique:submissions_user_exam"`
	Answers        map[string]int `bun:"answers"`
	Statuses       map[string]any `bun:"statuses"`
	Score          int            `bun:"score,notnull"`
	TotalQuestions int            `bun:"total_questions,notnull"`
	TimeSpent      int            `bun:"time_spent,notnull"`
	IsSubmitted    bool           `bun:"is_submitted,notnull"`
	CompletedAt    *time.Time     `bun:"completed_at"`
	CreatedAt      time.Time      `bun:"created_at,notnull"`
	UpdatedAt      time.Time      `bun:"updated_at,notnull"`
}

type rankingTable struct {
	bun.BaseModel `bun:"table:rankings"`

	ID             string    `bun:"id,pk"`
	UserID         string    `bun:"user_id,notnull,unique:rankings_user_exam"`
	ExamID         string    `bun:"exam_id,notnull,unique:rankings_user_exam"`
	UserName       string    `bun:"user_name,notnull"`
	ExamName       string    `bun:"exam_name,notnull"`
	Score          int       `bun:"score,notnull"`
	TotalQuestions int       `bun:"total_questions,notnull"`
	Percentage     int       `bun:"percentage,notnull"`
	Rank           int       `bun:"rank,notnull"`
	CompletedAt    time.Time `bun:"completed_at,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			if _, err := db.NewCreateTable().Model((*submissionTable)(nil)).IfNotExists().Exec(ctx); err != nil {
				return err
			}
			if _, err := db.NewCreateTable().Model((*rankingTable)(nil)).IfNotExists().Exec(ctx); err != nil {
				return err
			}
			_, err := db.NewCreateIndex().
				Model((*rankingTable)(nil)).
				Index("rankings_exam_idx").
				IfNotExists().
				Column("exam_id").
				Exec(ctx)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			if _, err := db.NewDropTable().Model((*rankingTable)(nil)).IfExists().Exec(ctx); err != nil {
				return err
			}
			_, err := db.NewDropTable().Model((*submissionTable)(nil)).IfExists().Exec(ctx)
			return err
		},
	)
}
