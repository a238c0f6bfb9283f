package memory

import (
	"context"
	"sync"
	"time"

	"exam-grading-service/internal/app"
	"exam-grading-service/internal/domain"
	"github.com/google/uuid"
)

type pairKey struct {
	userID string
	examID string
}

type state struct {
	submissions map[pairKey]domain.Submission
	rankings    map[pairKey]domain.Ranking
}

func (st state) clone() state {
	out := state{
		submissions: make(map[pairKey]domain.Submission, len(st.submissions)),
		rankings:    make(map[pairKey]domain.Ranking, len(st.rankings)),
	}
	for k, v := range st.submissions {
		out.submissions[k] = v
	}
	for k, v := range st.rankings {
		out.rankings[k] = v
	}
	return out
}

// Store is an in-memory implementation of app.UnitOfWork. Transactions are serialized and work
// on a private copy of the committed state that replaces it only when fn succeeds.
type Store struct {
	txMu sync.Mutex

	mu        sync.RWMutex
	committed state

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		committed: state{
			submissions: make(map[pairKey]domain.Submission),
			rankings:    make(map[pairKey]domain.Ranking),
		},
		now: time.Now,
	}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Stores) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.committed.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &txStores{st: &work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.committed = work
	s.mu.Unlock()
	return nil
}

// Submissions runs each call as its own transaction.
func (s *Store) Submissions() app.SubmissionStore { return autoSubmissions{s} }

// Rankings runs each call as its own transaction.
func (s *Store) Rankings() app.RankingStore { return autoRankings{s} }

type txStores struct {
	st  *state
	now func() time.Time
}

func (t *txStores) Submissions() app.SubmissionStore { return submissionTx{t} }
func (t *txStores) Rankings() app.RankingStore       { return rankingTx{t} }

type submissionTx struct{ *txStores }

func (t submissionTx) UpsertDraft(_ context.Context, d domain.Draft) (domain.Submission, error) {
	key := pairKey{d.UserID, d.ExamID}
	sub, ok := t.st.submissions[key]
	if ok && sub.IsSubmitted {
		return domain.Submission{}, domain.ErrAlreadySubmitted
	}
	if !ok {
		sub = domain.Submission{
			ID:        uuid.NewString(),
			UserID:    d.UserID,
			ExamID:    d.ExamID,
			CreatedAt: d.SavedAt,
		}
	}
	sub.Answers = copyAnswers(d.Answers)
	sub.Statuses = copyStatuses(d.Statuses)
	sub.TimeSpent = d.TimeSpent
	sub.UpdatedAt = d.SavedAt
	t.st.submissions[key] = sub
	return sub, nil
}

func (t submissionTx) Finalize(_ context.Context, f domain.FinalSubmission) (domain.Submission, error) {
	key := pairKey{f.UserID, f.ExamID}
	sub, ok := t.st.submissions[key]
	if ok && sub.IsSubmitted {
		return domain.Submission{}, domain.ErrDuplicateSubmission
	}
	if !ok {
		sub = domain.Submission{
			ID:        uuid.NewString(),
			UserID:    f.UserID,
			ExamID:    f.ExamID,
			CreatedAt: f.CompletedAt,
		}
	}
	completedAt := f.CompletedAt
	sub.Answers = copyAnswers(f.Answers)
	sub.Statuses = copyStatuses(f.Statuses)
	sub.Score = f.Score
	sub.TotalQuestions = f.TotalQuestions
	sub.TimeSpent = f.TimeSpent
	sub.IsSubmitted = true
	sub.CompletedAt = &completedAt
	sub.UpdatedAt = f.CompletedAt
	t.st.submissions[key] = sub
	return sub, nil
}

func (t submissionTx) Get(_ context.Context, userID, examID string) (domain.Submission, error) {
	sub, ok := t.st.submissions[pairKey{userID, examID}]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return sub, nil
}

func (t submissionTx) Delete(_ context.Context, userID, examID string) error {
	key := pairKey{userID, examID}
	if _, ok := t.st.submissions[key]; !ok {
		return domain.ErrSubmissionNotFound
	}
	delete(t.st.submissions, key)
	return nil
}

type rankingTx struct{ *txStores }

func (t rankingTx) Upsert(_ context.Context, in domain.RankingUpsert) (domain.Ranking, error) {
	key := pairKey{in.UserID, in.ExamID}
	r, ok := t.st.rankings[key]
	if !ok {
		r = domain.Ranking{
			ID:     uuid.NewString(),
			UserID: in.UserID,
			ExamID: in.ExamID,
			Rank:   1,
		}
	}
	r.UserName = in.UserName
	r.ExamName = in.ExamName
	r.Score = in.Score
	r.TotalQuestions = in.TotalQuestions
	r.Percentage = in.Percentage
	r.CompletedAt = in.CompletedAt
	r.UpdatedAt = t.now().UTC()
	t.st.rankings[key] = r
	return r, nil
}

func (t rankingTx) Get(_ context.Context, userID, examID string) (domain.Ranking, error) {
	r, ok := t.st.rankings[pairKey{userID, examID}]
	if !ok {
		return domain.Ranking{}, domain.ErrRankingNotFound
	}
	return r, nil
}

func (t rankingTx) Delete(_ context.Context, userID, examID string) error {
	key := pairKey{userID, examID}
	if _, ok := t.st.rankings[key]; !ok {
		return domain.ErrRankingNotFound
	}
	delete(t.st.rankings, key)
	return nil
}

// LockExam is a no-op: transactions are already serialized.
func (t rankingTx) LockExam(context.Context, string) error { return nil }

func (t rankingTx) ListByExam(_ context.Context, examID string) ([]domain.Ranking, error) {
	var rows []domain.Ranking
	for k, r := range t.st.rankings {
		if k.examID == examID {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func (t rankingTx) BulkSetRanks(_ context.Context, examID string, ranks []domain.RankAssignment) error {
	byID := make(map[string]int, len(ranks))
	for _, a := range ranks {
		byID[a.RankingID] = a.Rank
	}
	now := t.now().UTC()
	for k, r := range t.st.rankings {
		if k.examID != examID {
			continue
		}
		if rank, ok := byID[r.ID]; ok && rank != r.Rank {
			r.Rank = rank
			r.UpdatedAt = now
			t.st.rankings[k] = r
		}
	}
	return nil
}

type autoSubmissions struct{ s *Store }

func (a autoSubmissions) UpsertDraft(ctx context.Context, d domain.Draft) (out domain.Submission, err error) {
	err = a.s.RunInTx(ctx, func(ctx context.Context, tx app.Stores) error {
		out, err = tx.Submissions().UpsertDraft(ctx, d)
		return err
	})
	return out, err
}

func (a autoSubmissions) Finalize(ctx context.Context, f domain.FinalSubmission) (out domain.Submission, err error) {
	err = a.s.RunInTx(ctx, func(ctx context.Context, tx app.Stores) error {
		out, err = tx.Submissions().Finalize(ctx, f)
		return err
	})
	return out, err
}

func (a autoSubmissions) Get(_ context.Context, userID, examID string) (domain.Submission, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	sub, ok := a.s.committed.submissions[pairKey{userID, examID}]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return sub, nil
}

func (a autoSubmissions) Delete(ctx context.Context, userID, examID string) error {
	return a.s.RunInTx(ctx, func(ctx context.Context, tx app.Stores) error {
		return tx.Submissions().Delete(ctx, userID, examID)
	})
}

type autoRankings struct{ s *Store }

func (a autoRankings) Upsert(ctx context.Context, in domain.RankingUpsert) (out domain.Ranking, err error) {
	err = a.s.RunInTx(ctx, func(ctx context.Context, tx app.Stores) error {
		out, err = tx.Rankings().Upsert(ctx, in)
		return err
	})
	return out, err
}

func (a autoRankings) Get(_ context.Context, userID, examID string) (domain.Ranking, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	r, ok := a.s.committed.rankings[pairKey{userID, examID}]
	if !ok {
		return domain.Ranking{}, domain.ErrRankingNotFound
	}
	return r, nil
}

func (a autoRankings) Delete(ctx context.Context, userID, examID string) error {
	return a.s.RunInTx(ctx, func(ctx context.Context, tx app.Stores) error {
		return tx.Rankings().Delete(ctx, userID, examID)
	})
}

func (a autoRankings) LockExam(context.Context, string) error { return nil }

func (a autoRankings) ListByExam(_ context.Context, examID string) ([]domain.Ranking, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	var rows []domain.Ranking
	for k, r := range a.s.committed.rankings {
		if k.examID == examID {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func (a autoRankings) BulkSetRanks(ctx context.Context, examID string, ranks []domain.RankAssignment) error {
	return a.s.RunInTx(ctx, func(ctx context.Context, tx app.Stores) error {
		return tx.Rankings().BulkSetRanks(ctx, examID, ranks)
	})
}

func copyAnswers(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStatuses(in map[string]domain.QuestionStatus) map[string]domain.QuestionStatus {
	out := make(map[string]domain.QuestionStatus, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
