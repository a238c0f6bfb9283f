// Package scoring grades an answer sheet against an exam snapshot. It performs no I/O.
package scoring

import (
	"math"

	"exam-grading-service/internal/domain"
)

// QuestionScore is the graded outcome of one exam question.
type QuestionScore struct {
	QuestionID string            `json:"questionId"`
	Subject    string            `json:"subject"`
	Topic      string            `json:"topic"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Selected   *int              `json:"selected,omitempty"`
	Answered   bool              `json:"answered"`
	Correct    bool              `json:"correct"`
	Earned     int               `json:"earned"`
	MaxMarks   int               `json:"maxMarks"`
}

// SubjectScore aggregates the breakdown of one subject.
type SubjectScore struct {
	Subject    string `json:"subject"`
	Score      int    `json:"score"`
	MaxMarks   int    `json:"maxMarks"`
	Correct    int    `json:"correct"`
	Wrong      int    `json:"wrong"`
	Unanswered int    `json:"unanswered"`
}

// Result is the aggregate outcome of grading an answer sheet.
type Result struct {
	Score           int             `json:"score"`
	TotalMarks      int             `json:"totalMarks"`
	TotalQuestions  int             `json:"totalQuestions"`
	CorrectCount    int             `json:"correctCount"`
	WrongCount      int             `json:"wrongCount"`
	UnansweredCount int             `json:"unansweredCount"`
	Percentage      int             `json:"percentage"`
	Grade           string          `json:"grade"`
	Breakdown       []QuestionScore `json:"breakdown"`
	Subjects        []SubjectScore  `json:"subjects"`
}

// Calculate grades answers (question ID -> selected option) against the exam.
// Answers for questions outside the exam are ignored. The total is not clamped and may be negative.
func Calculate(exam domain.Exam, answers map[string]int) Result {
	res := Result{
		TotalMarks:     exam.TotalMarks(),
		TotalQuestions: len(exam.Questions),
		Breakdown:      make([]QuestionScore, 0, len(exam.Questions)),
	}

	for _, eq := range exam.Questions {
		q := eq.Question
		qs := QuestionScore{
			QuestionID: q.ID,
			Subject:    q.Subject,
			Topic:      q.Topic,
			Difficulty: q.Difficulty,
			MaxMarks:   eq.EffectiveMarks(),
		}

		selected, ok := answers[q.ID]
		switch {
		case !ok:
			res.UnansweredCount++
		case selected == q.CorrectOption:
			opt := selected
			qs.Selected = &opt
			qs.Answered = true
			qs.Correct = true
			qs.Earned = eq.EffectiveMarks()
			res.CorrectCount++
		default:
			opt := selected
			qs.Selected = &opt
			qs.Answered = true
			qs.Earned = -penalty(q)
			res.WrongCount++
		}

		res.Score += qs.Earned
		res.Breakdown = append(res.Breakdown, qs)
	}

	res.Percentage = Percentage(res.Score, res.TotalMarks)
	res.Grade = Grade(res.Percentage)
	res.Subjects = summarizeSubjects(res.Breakdown)
	return res
}

// penalty is the magnitude deducted for a wrong answer; unset means no negative marking.
func penalty(q domain.Question) int {
	if q.NegativeMarks < 0 {
		return -q.NegativeMarks
	}
	return q.NegativeMarks
}

// Percentage is round(score/totalMarks*100), or 0 when the exam carries no marks.
func Percentage(score, totalMarks int) int {
	if totalMarks == 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(totalMarks) * 100))
}

func summarizeSubjects(breakdown []QuestionScore) []SubjectScore {
	index := make(map[string]int)
	subjects := make([]SubjectScore, 0)
	for _, qs := range breakdown {
		i, ok := index[qs.Subject]
		if !ok {
			i = len(subjects)
			index[qs.Subject] = i
			subjects = append(subjects, SubjectScore{Subject: qs.Subject})
		}
		s := &subjects[i]
		s.Score += qs.Earned
		s.MaxMarks += qs.MaxMarks
		switch {
		case !qs.Answered:
			s.Unanswered++
		case qs.Correct:
			s.Correct++
		default:
			s.Wrong++
		}
	}
	return subjects
}
