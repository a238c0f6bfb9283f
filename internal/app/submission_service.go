package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/metrics"
	"exam-grading-service/internal/ranking"
	"exam-grading-service/internal/scoring"
	"github.com/rs/zerolog"
)

const invalidateTimeout = 2 * time.Second

// SubmitRequest is a final answer sheet handed over by the API layer.
type SubmitRequest struct {
	UserID    string
	ExamID    string
	Answers   map[string]int
	Statuses  map[string]domain.QuestionStatus
	TimeSpent int
}

// DraftRequest is an autosaved, non-final answer sheet.
type DraftRequest struct {
	UserID    string
	ExamID    string
	Answers   map[string]int
	Statuses  map[string]domain.QuestionStatus
	TimeSpent int
}

// SubmitResult is the graded outcome of a submission together with the user's new standing.
type SubmitResult struct {
	Score             int                     `json:"score"`
	TotalMarks        int                     `json:"totalMarks"`
	TotalQuestions    int                     `json:"totalQuestions"`
	CorrectCount      int                     `json:"correctCount"`
	WrongCount        int                     `json:"wrongCount"`
	UnansweredCount   int                     `json:"unansweredCount"`
	Percentage        int                     `json:"percentage"`
	Grade             string                  `json:"grade"`
	Rank              int                     `json:"rank"`
	TotalParticipants int                     `json:"totalParticipants"`
	CompletedAt       time.Time               `json:"completedAt"`
	Breakdown         []scoring.QuestionScore `json:"breakdown"`
	Subjects          []scoring.SubjectScore  `json:"subjects"`
}

// SubmissionService grades submissions and keeps every exam's ranking consistent.
// It is the only writer of submissions and rankings.
type SubmissionService struct {
	exams        ExamCatalog
	users        UserDirectory
	uow          UnitOfWork
	invalidator  CacheInvalidator
	leaderboards LeaderboardCache
	recalc       *ranking.Recalculator
	log          zerolog.Logger
	now          func() time.Time
	txTimeout    time.Duration
}

// Option customizes a SubmissionService.
type Option func(*SubmissionService)

// WithClock replaces time.Now; tests use it for deterministic completion times.
func WithClock(now func() time.Time) Option {
	return func(s *SubmissionService) { s.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *SubmissionService) { s.log = log.With().Str("component", "submission_service").Logger() }
}

// WithLeaderboardCache enables the read-through leaderboard cache.
func WithLeaderboardCache(cache LeaderboardCache) Option {
	return func(s *SubmissionService) { s.leaderboards = cache }
}

// WithTxTimeout bounds every transaction; zero means the caller's context alone decides.
func WithTxTimeout(d time.Duration) Option {
	return func(s *SubmissionService) { s.txTimeout = d }
}

func WithRecalculator(r *ranking.Recalculator) Option {
	return func(s *SubmissionService) { s.recalc = r }
}

func NewSubmissionService(exams ExamCatalog, users UserDirectory, uow UnitOfWork, invalidator CacheInvalidator, opts ...Option) *SubmissionService {
	s := &SubmissionService{
		exams:       exams,
		users:       users,
		uow:         uow,
		invalidator: invalidator,
		recalc:      ranking.NewRecalculator(metrics.ObserveRecalculation),
		log:         zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit grades the answer sheet and, in one transaction, finalizes the submission, upserts the
// user's ranking and re-ranks every participant of the exam. Cached views are invalidated after
// commit; failures there are logged and never returned.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	exam, err := s.publishedExam(ctx, req.ExamID)
	if err != nil {
		s.countOutcome(err)
		return SubmitResult{}, err
	}
	if err := validateSheet(exam, req.Answers, req.Statuses, req.TimeSpent); err != nil {
		s.countOutcome(err)
		return SubmitResult{}, err
	}

	graded := scoring.Calculate(exam, req.Answers)

	userName, err := s.displayName(ctx, req.UserID)
	if err != nil {
		s.countOutcome(err)
		return SubmitResult{}, err
	}

	completedAt := s.now().UTC()
	var (
		rank         int
		participants int
	)
	err = s.inTx(ctx, func(ctx context.Context, tx Stores) error {
		if _, err := tx.Submissions().Finalize(ctx, domain.FinalSubmission{
			UserID:         req.UserID,
			ExamID:         exam.ID,
			Answers:        nonNilAnswers(req.Answers),
			Statuses:       nonNilStatuses(req.Statuses),
			Score:          graded.Score,
			TotalQuestions: graded.TotalQuestions,
			TimeSpent:      req.TimeSpent,
			CompletedAt:    completedAt,
		}); err != nil {
			return fmt.Errorf("finalize submission: %w", err)
		}

		if _, err := tx.Rankings().Upsert(ctx, domain.RankingUpsert{
			UserID:         req.UserID,
			ExamID:         exam.ID,
			UserName:       userName,
			ExamName:       exam.Title,
			Score:          graded.Score,
			TotalQuestions: graded.TotalQuestions,
			Percentage:     graded.Percentage,
			CompletedAt:    completedAt,
		}); err != nil {
			return fmt.Errorf("upsert ranking: %w", err)
		}

		standings, err := s.recalc.Recalculate(ctx, tx.Rankings(), exam.ID)
		if err != nil {
			return err
		}
		participants = len(standings)
		for _, st := range standings {
			if st.UserID == req.UserID {
				rank = st.Rank
				break
			}
		}
		if rank == 0 {
			return fmt.Errorf("ranking for user %s missing after recalculation", req.UserID)
		}
		return nil
	})
	if err != nil {
		err = s.classify(err, "submit", req.UserID, req.ExamID)
		s.countOutcome(err)
		return SubmitResult{}, err
	}

	s.log.Debug().
		Str("exam_id", exam.ID).
		Str("user_id", req.UserID).
		Int("score", graded.Score).
		Int("rank", rank).
		Int("participants", participants).
		Msg("submission graded")

	s.invalidateExam(ctx, exam)
	s.countOutcome(nil)

	return SubmitResult{
		Score:             graded.Score,
		TotalMarks:        graded.TotalMarks,
		TotalQuestions:    graded.TotalQuestions,
		CorrectCount:      graded.CorrectCount,
		WrongCount:        graded.WrongCount,
		UnansweredCount:   graded.UnansweredCount,
		Percentage:        graded.Percentage,
		Grade:             graded.Grade,
		Rank:              rank,
		TotalParticipants: participants,
		CompletedAt:       completedAt,
		Breakdown:         graded.Breakdown,
		Subjects:          graded.Subjects,
	}, nil
}

// SaveDraft autosaves an in-progress answer sheet. It fails with ErrAlreadySubmitted once the
// submission is final.
func (s *SubmissionService) SaveDraft(ctx context.Context, req DraftRequest) (domain.Submission, error) {
	exam, err := s.publishedExam(ctx, req.ExamID)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := validateSheet(exam, req.Answers, req.Statuses, req.TimeSpent); err != nil {
		return domain.Submission{}, err
	}

	var saved domain.Submission
	err = s.inTx(ctx, func(ctx context.Context, tx Stores) error {
		sub, err := tx.Submissions().UpsertDraft(ctx, domain.Draft{
			UserID:    req.UserID,
			ExamID:    exam.ID,
			Answers:   nonNilAnswers(req.Answers),
			Statuses:  nonNilStatuses(req.Statuses),
			TimeSpent: req.TimeSpent,
			SavedAt:   s.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("save draft: %w", err)
		}
		saved = sub
		return nil
	})
	if err != nil {
		return domain.Submission{}, s.classify(err, "save_draft", req.UserID, req.ExamID)
	}
	return saved, nil
}

// GetSubmission returns the current draft or final submission of a user.
func (s *SubmissionService) GetSubmission(ctx context.Context, userID, examID string) (domain.Submission, error) {
	sub, err := s.uow.Submissions().Get(ctx, userID, examID)
	if err != nil {
		return domain.Submission{}, s.classify(err, "get_submission", userID, examID)
	}
	return sub, nil
}

// RemoveSubmission is the administrative path that deletes a submission, drops the matching
// ranking and re-ranks the rest of the exam in one transaction.
func (s *SubmissionService) RemoveSubmission(ctx context.Context, userID, examID string) error {
	err := s.inTx(ctx, func(ctx context.Context, tx Stores) error {
		if err := tx.Submissions().Delete(ctx, userID, examID); err != nil {
			return fmt.Errorf("delete submission: %w", err)
		}
		if err := tx.Rankings().Delete(ctx, userID, examID); err != nil && !errors.Is(err, domain.ErrRankingNotFound) {
			return fmt.Errorf("delete ranking: %w", err)
		}
		_, err := s.recalc.Recalculate(ctx, tx.Rankings(), examID)
		return err
	})
	if err != nil {
		return s.classify(err, "remove_submission", userID, examID)
	}

	s.log.Info().Str("exam_id", examID).Str("user_id", userID).Msg("submission removed")

	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		exam = domain.Exam{ID: examID}
	}
	s.invalidateExam(ctx, exam)
	return nil
}

// Leaderboard returns the ranked view of an exam, served from the leaderboard cache when warm.
// A cached leaderboard is tagged with its exam scope only, so writes to other exams keep it.
func (s *SubmissionService) Leaderboard(ctx context.Context, examID string) (domain.Leaderboard, error) {
	tags := []domain.CacheScope{domain.ExamScope(examID)}
	cacheable := s.leaderboards != nil
	var version int64
	if cacheable {
		lb, ok, err := s.leaderboards.Get(ctx, examID)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("exam_id", examID).Msg("leaderboard cache read failed")
		case ok:
			return lb, nil
		}
		if version, err = s.leaderboards.Version(ctx, tags); err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID).Msg("leaderboard cache version failed")
			cacheable = false
		}
	}

	rows, err := s.uow.Rankings().ListByExam(ctx, examID)
	if err != nil {
		return domain.Leaderboard{}, s.classify(err, "leaderboard", "", examID)
	}

	lb := domain.Leaderboard{
		ExamID:    examID,
		Entries:   make([]domain.LeaderboardEntry, 0, len(rows)),
		UpdatedAt: s.now().UTC(),
	}
	for _, r := range ranking.Sort(rows) {
		lb.Entries = append(lb.Entries, domain.LeaderboardEntry{
			UserID:      r.UserID,
			UserName:    r.UserName,
			Score:       r.Score,
			Percentage:  r.Percentage,
			Rank:        r.Rank,
			CompletedAt: r.CompletedAt,
		})
	}

	if cacheable {
		if err := s.leaderboards.Set(ctx, lb, tags, version); err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID).Msg("leaderboard cache write failed")
		}
	}
	return lb, nil
}

func (s *SubmissionService) publishedExam(ctx context.Context, examID string) (domain.Exam, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, domain.ErrExamNotFound) {
			return domain.Exam{}, domain.ErrExamNotFound
		}
		s.log.Error().Err(err).Str("exam_id", examID).Msg("load exam failed")
		return domain.Exam{}, domain.ErrUnavailable
	}
	if !exam.Published {
		return domain.Exam{}, domain.ErrExamNotAvailable
	}
	return exam, nil
}

// displayName falls back to the user ID for users unknown to the directory.
func (s *SubmissionService) displayName(ctx context.Context, userID string) (string, error) {
	if s.users == nil {
		return userID, nil
	}
	name, err := s.users.DisplayName(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		s.log.Warn().Str("user_id", userID).Msg("user not in directory, storing id as name")
		return userID, nil
	case err != nil:
		s.log.Error().Err(err).Str("user_id", userID).Msg("user lookup failed")
		return "", domain.ErrUnavailable
	case name == "":
		return userID, nil
	}
	return name, nil
}

func (s *SubmissionService) inTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}
	return s.uow.RunInTx(ctx, fn)
}

var callerErrors = []error{
	domain.ErrExamNotFound,
	domain.ErrExamNotAvailable,
	domain.ErrDuplicateSubmission,
	domain.ErrAlreadySubmitted,
	domain.ErrSubmissionNotFound,
	domain.ErrRankingNotFound,
	domain.ErrInvalidAnswer,
	domain.ErrUnavailable,
}

// classify returns the caller-facing sentinel for err. Anything that is not a domain error is
// logged with its cause and reported as ErrUnavailable.
func (s *SubmissionService) classify(err error, op, userID, examID string) error {
	for _, target := range callerErrors {
		if errors.Is(err, target) {
			return target
		}
	}
	s.log.Error().Err(err).Str("op", op).Str("user_id", userID).Str("exam_id", examID).Msg("store operation failed")
	return domain.ErrUnavailable
}

func (s *SubmissionService) invalidateExam(ctx context.Context, exam domain.Exam) {
	if s.invalidator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()

	scopes := []domain.CacheScope{domain.ExamScope(exam.ID), domain.GlobalScope()}
	for _, subject := range exam.Subjects() {
		scopes = append(scopes, domain.SubjectScope(subject))
	}
	for _, scope := range scopes {
		if err := s.invalidator.Invalidate(ctx, scope); err != nil {
			metrics.InvalidationFailures.WithLabelValues(string(scope.Kind)).Inc()
			s.log.Warn().Err(err).Str("scope", scope.String()).Msg("cache invalidation failed")
		}
	}
}

func (s *SubmissionService) countOutcome(err error) {
	outcome := "graded"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDuplicateSubmission):
		outcome = "duplicate"
	case errors.Is(err, domain.ErrInvalidAnswer):
		outcome = "invalid"
	case errors.Is(err, domain.ErrExamNotFound):
		outcome = "exam_not_found"
	case errors.Is(err, domain.ErrExamNotAvailable):
		outcome = "exam_not_available"
	default:
		outcome = "unavailable"
	}
	metrics.Submissions.WithLabelValues(outcome).Inc()
}

// validateSheet rejects answers and statuses that cannot belong to exam.
func validateSheet(exam domain.Exam, answers map[string]int, statuses map[string]domain.QuestionStatus, timeSpent int) error {
	if timeSpent < 0 {
		return fmt.Errorf("%w: negative time spent", domain.ErrInvalidAnswer)
	}
	for qid, option := range answers {
		if !exam.HasQuestion(qid) {
			return fmt.Errorf("%w: question %q is not part of exam %s", domain.ErrInvalidAnswer, qid, exam.ID)
		}
		if option < 0 {
			return fmt.Errorf("%w: question %q has negative option %d", domain.ErrInvalidAnswer, qid, option)
		}
	}
	for qid, st := range statuses {
		if !exam.HasQuestion(qid) {
			return fmt.Errorf("%w: status for unknown question %q", domain.ErrInvalidAnswer, qid)
		}
		if err := st.Validate(); err != nil {
			return fmt.Errorf("%w: question %q: %v", domain.ErrInvalidAnswer, qid, err)
		}
	}
	return nil
}

func nonNilAnswers(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func nonNilStatuses(m map[string]domain.QuestionStatus) map[string]domain.QuestionStatus {
	if m == nil {
		return map[string]domain.QuestionStatus{}
	}
	return m
}
