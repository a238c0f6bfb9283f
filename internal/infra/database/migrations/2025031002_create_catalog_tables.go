package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

// The catalog is owned by the authoring side; these tables mirror the columns the grading
// service reads so local and test databases can be seeded.

type examTable struct {
	bun.BaseModel `bun:"table:exams"`

	ID        string `bun:"id,pk"`
	Title     string `bun:"title,notnull"`
	Published bool   `bun:"published,notnull"`
}

type questionTable struct {
	bun.BaseModel `bun:"table:questions"`

	ID            string `bun:"id,pk"`
	CorrectOption int    `bun:"correct_option,notnull"`
	PositiveMarks int    `bun:"positive_marks,notnull"`
	NegativeMarks int    `bun:"negative_marks,notnull"`
	Subject       string `bun:"subject,notnull"`
	Topic         string `bun:"topic,notnull"`
	Difficulty    string `bun:"difficulty,notnull"`
}

type examQuestionTable struct {
	bun.BaseModel `bun:"table:exam_questions"`

	ExamID     string `bun:"exam_id,pk"`
	QuestionID string `bun:"question_id,pk"`
	Marks      int    `bun:"marks,notnull"`
	SortOrder  int    `bun:"sort_order,notnull"`
}

type userTable struct {
	bun.BaseModel `bun:"table:users"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name,notnull"`
}

func init() {
	tables := []interface{}{
		(*examTable)(nil),
		(*questionTable)(nil),
		(*examQuestionTable)(nil),
		(*userTable)(nil),
	}
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			for _, model := range tables {
				if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
					return err
				}
			}
			return nil
		},
		func(ctx context.Context, db *bun.DB) error {
			for i := len(tables) - 1; i >= 0; i-- {
				if _, err := db.NewDropTable().Model(tables[i]).IfExists().Exec(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	)
}
