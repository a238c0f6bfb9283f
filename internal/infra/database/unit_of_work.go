package database

import (
	"context"
	"database/sql"

	"exam-grading-service/internal/app"
	"github.com/uptrace/bun"
)

// UnitOfWork implements app.UnitOfWork with bun transactions.
type UnitOfWork struct {
	db     *bun.DB
	stores stores
}

func NewUnitOfWork(db *bun.DB) *UnitOfWork {
	return &UnitOfWork{db: db, stores: newStores(db)}
}

func (u *UnitOfWork) Submissions() app.SubmissionStore { return u.stores.submissions }
func (u *UnitOfWork) Rankings() app.RankingStore       { return u.stores.rankings }

// RunInTx commits when fn returns nil and rolls back otherwise. Postgres runs at read committed;
// the exam lock taken by recalculation supplies the ordering that level lacks.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Stores) error) error {
	var opts *sql.TxOptions
	if isPostgres(u.db) {
		opts = &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	return u.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, newStores(tx))
	})
}

type stores struct {
	submissions *SubmissionStore
	rankings    *RankingStore
}

func newStores(db bun.IDB) stores {
	return stores{
		submissions: NewSubmissionStore(db),
		rankings:    NewRankingStore(db),
	}
}

func (s stores) Submissions() app.SubmissionStore { return s.submissions }
func (s stores) Rankings() app.RankingStore       { return s.rankings }
