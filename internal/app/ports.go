package app

import (
	"context"
	"errors"

	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/ranking"
)

// ExamCatalog loads immutable exam snapshots (from cache/backing store).
type ExamCatalog interface {
	GetExam(ctx context.Context, examID string) (domain.Exam, error)
}

// UserDirectory resolves the display name stored on rankings.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// SubmissionStore persists at most one submission per (user, exam).
type SubmissionStore interface {
	UpsertDraft(ctx context.Context, draft domain.Draft) (domain.Submission, error)
	Finalize(ctx context.Context, final domain.FinalSubmission) (domain.Submission, error)
	Get(ctx context.Context, userID, examID string) (domain.Submission, error)
	Delete(ctx context.Context, userID, examID string) error
}

// RankingStore persists one ranking per (user, exam).
type RankingStore interface {
	ranking.Store
	Upsert(ctx context.Context, in domain.RankingUpsert) (domain.Ranking, error)
	Get(ctx context.Context, userID, examID string) (domain.Ranking, error)
	Delete(ctx context.Context, userID, examID string) error
}

// Stores groups the stores bound to one connection or transaction.
type Stores interface {
	Submissions() SubmissionStore
	Rankings() RankingStore
}

// UnitOfWork runs fn inside one transaction. Returning an error from fn rolls back every write
// made through tx. The embedded Stores read committed state outside any transaction.
type UnitOfWork interface {
	Stores
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error
}

// CacheInvalidator marks cached views of a scope stale. Best effort: callers log failures.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, scope domain.CacheScope) error
}

// LeaderboardCache stores rendered leaderboards tagged with the scopes that invalidate them.
// Version is read before the rankings are loaded; Set discards lb when any of its tags was
// invalidated after that version was taken.
type LeaderboardCache interface {
	Get(ctx context.Context, examID string) (domain.Leaderboard, bool, error)
	Version(ctx context.Context, tags []domain.CacheScope) (int64, error)
	Set(ctx context.Context, lb domain.Leaderboard, tags []domain.CacheScope, version int64) error
}

// Invalidators fans an invalidation out to every sink and joins their failures.
type Invalidators []CacheInvalidator

func (inv Invalidators) Invalidate(ctx context.Context, scope domain.CacheScope) error {
	var errs []error
	for _, sink := range inv {
		if sink == nil {
			continue
		}
		if err := sink.Invalidate(ctx, scope); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
