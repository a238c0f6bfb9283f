// Package ranking assigns competition ranks to the rankings of one exam.
//
// Rows are ordered by score desc, percentage desc, completion time asc and finally user ID, which
// makes the order total. Rows with equal (score, percentage) share a rank and the next distinct
// row takes its 1-based position, so ties leave gaps: 1, 1, 3.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"exam-grading-service/internal/domain"
)

// Store is the slice of the ranking store a recalculation needs. Implementations must run every
// call inside the caller's transaction.
type Store interface {
	LockExam(ctx context.Context, examID string) error
	ListByExam(ctx context.Context, examID string) ([]domain.Ranking, error)
	BulkSetRanks(ctx context.Context, examID string, ranks []domain.RankAssignment) error
}

// Standing is a ranking with its freshly computed rank.
type Standing struct {
	domain.Ranking
	Previous int
}

// Less reports whether a sorts before b.
func Less(a, b domain.Ranking) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Percentage != b.Percentage {
		return a.Percentage > b.Percentage
	}
	if !a.CompletedAt.Equal(b.CompletedAt) {
		return a.CompletedAt.Before(b.CompletedAt)
	}
	return a.UserID < b.UserID
}

func tied(a, b domain.Ranking) bool {
	return a.Score == b.Score && a.Percentage == b.Percentage
}

// Sort returns a sorted copy of rows.
func Sort(rows []domain.Ranking) []domain.Ranking {
	sorted := make([]domain.Ranking, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Less(sorted[i], sorted[j])
	})
	return sorted
}

// Assign sorts rows and computes their competition ranks.
func Assign(rows []domain.Ranking) []Standing {
	sorted := Sort(rows)
	standings := make([]Standing, len(sorted))
	for i, row := range sorted {
		st := Standing{Ranking: row, Previous: row.Rank}
		switch {
		case i == 0:
			st.Rank = 1
		case tied(row, sorted[i-1]):
			st.Rank = standings[i-1].Rank
		default:
			st.Rank = i + 1
		}
		standings[i] = st
	}
	return standings
}

// Diff lists the assignments whose rank differs from the persisted one.
func Diff(standings []Standing) []domain.RankAssignment {
	var changed []domain.RankAssignment
	for _, st := range standings {
		if st.Rank != st.Previous {
			changed = append(changed, domain.RankAssignment{RankingID: st.ID, Rank: st.Rank})
		}
	}
	return changed
}

// Check verifies the ranking invariant over standings in sorted order.
func Check(standings []Standing) error {
	for i, st := range standings {
		if i > 0 && Less(st.Ranking, standings[i-1].Ranking) {
			return fmt.Errorf("ranking %s out of order at position %d", st.ID, i+1)
		}
		want := i + 1
		if i > 0 && tied(st.Ranking, standings[i-1].Ranking) {
			want = standings[i-1].Rank
		}
		if st.Rank != want {
			return fmt.Errorf("ranking %s at position %d has rank %d, want %d", st.ID, i+1, st.Rank, want)
		}
	}
	return nil
}

// Observer receives the outcome of each recalculation; used for metrics.
type Observer func(examID string, rows, rewritten int, took time.Duration)

// Recalculator re-ranks an exam through a Store bound to the enclosing transaction.
type Recalculator struct {
	observe Observer
}

func NewRecalculator(observe Observer) *Recalculator {
	return &Recalculator{observe: observe}
}

// Recalculate locks the exam, reads every ranking, and writes back only the ranks that changed.
// The returned standings reflect the persisted state after the write.
func (r *Recalculator) Recalculate(ctx context.Context, store Store, examID string) ([]Standing, error) {
	start := time.Now()
	if err := store.LockExam(ctx, examID); err != nil {
		return nil, fmt.Errorf("lock exam rankings: %w", err)
	}
	rows, err := store.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list rankings: %w", err)
	}

	standings := Assign(rows)
	changed := Diff(standings)
	if len(changed) > 0 {
		if err := store.BulkSetRanks(ctx, examID, changed); err != nil {
			return nil, fmt.Errorf("set ranks: %w", err)
		}
	}

	if r != nil && r.observe != nil {
		r.observe(examID, len(rows), len(changed), time.Since(start))
	}
	return standings, nil
}
