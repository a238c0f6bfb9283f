package domain

import "time"

// Difficulty is the authoring difficulty tag of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is an MCQ with a single correct option. Questions are immutable once an exam
// referencing them has been submitted against.
type Question struct {
	ID            string     `json:"id"`
	CorrectOption int        `json:"correctOption"`
	PositiveMarks int        `json:"positiveMarks"`
	NegativeMarks int        `json:"negativeMarks"`
	Subject       string     `json:"subject"`
	Topic         string     `json:"topic"`
	Difficulty    Difficulty `json:"difficulty"`
}

// ExamQuestion places a question into an exam with an exam-specific marks override.
type ExamQuestion struct {
	Question Question `json:"question"`
	Marks    int      `json:"marks"`
	Order    int      `json:"order"`
}

// EffectiveMarks is the override when set, otherwise the question's own positive marks.
func (eq ExamQuestion) EffectiveMarks() int {
	if eq.Marks > 0 {
		return eq.Marks
	}
	return eq.Question.PositiveMarks
}

// Exam is the immutable snapshot of an exam and its ordered questions used for grading.
type Exam struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Published bool           `json:"published"`
	Questions []ExamQuestion `json:"questions"`
}

// TotalMarks sums the effective marks of every question.
func (e Exam) TotalMarks() int {
	total := 0
	for _, q := range e.Questions {
		total += q.EffectiveMarks()
	}
	return total
}

// Subjects returns the distinct subjects of the exam in question order.
func (e Exam) Subjects() []string {
	seen := make(map[string]struct{}, len(e.Questions))
	subjects := make([]string, 0, len(e.Questions))
	for _, q := range e.Questions {
		if q.Question.Subject == "" {
			continue
		}
		if _, ok := seen[q.Question.Subject]; ok {
			continue
		}
		seen[q.Question.Subject] = struct{}{}
		subjects = append(subjects, q.Question.Subject)
	}
	return subjects
}

// HasQuestion reports whether questionID belongs to the exam.
func (e Exam) HasQuestion(questionID string) bool {
	for _, q := range e.Questions {
		if q.Question.ID == questionID {
			return true
		}
	}
	return false
}

// Submission is a user's answer sheet for one exam. There is at most one per (UserID, ExamID).
type Submission struct {
	ID             string                    `json:"id"`
	UserID         string                    `json:"userId"`
	ExamID         string                    `json:"examId"`
	Answers        map[string]int            `json:"answers"`
	Statuses       map[string]QuestionStatus `json:"statuses"`
	Score          int                       `json:"score"`
	TotalQuestions int                       `json:"totalQuestions"`
	TimeSpent      int                       `json:"timeSpent"`
	IsSubmitted    bool                      `json:"isSubmitted"`
	CompletedAt    *time.Time                `json:"completedAt,omitempty"`
	CreatedAt      time.Time                 `json:"createdAt"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
}

// Draft is the payload of an autosave.
type Draft struct {
	UserID    string
	ExamID    string
	Answers   map[string]int
	Statuses  map[string]QuestionStatus
	TimeSpent int
	SavedAt   time.Time
}

// FinalSubmission is the payload that turns a submission final.
type FinalSubmission struct {
	UserID         string
	ExamID         string
	Answers        map[string]int
	Statuses       map[string]QuestionStatus
	Score          int
	TotalQuestions int
	TimeSpent      int
	CompletedAt    time.Time
}

// Ranking is the denormalized leaderboard row of a user for one exam.
type Ranking struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	ExamID         string    `json:"examId"`
	UserName       string    `json:"userName"`
	ExamName       string    `json:"examName"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Percentage     int       `json:"percentage"`
	Rank           int       `json:"rank"`
	CompletedAt    time.Time `json:"completedAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// RankingUpsert carries the fields written by a ranking upsert. Rank is assigned later.
type RankingUpsert struct {
	UserID         string
	ExamID         string
	UserName       string
	ExamName       string
	Score          int
	TotalQuestions int
	Percentage     int
	CompletedAt    time.Time
}

// RankAssignment is a computed rank for one ranking row.
type RankAssignment struct {
	RankingID string
	Rank      int
}

// Leaderboard is the ranked view of an exam.
type Leaderboard struct {
	ExamID    string             `json:"examId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// LeaderboardEntry is a snapshot-friendly view of a ranking.
type LeaderboardEntry struct {
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName"`
	Score       int       `json:"score"`
	Percentage  int       `json:"percentage"`
	Rank        int       `json:"rank"`
	CompletedAt time.Time `json:"completedAt"`
}
