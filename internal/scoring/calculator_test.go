package scoring

import (
	"testing"

	"exam-grading-service/internal/domain"
)

func TestNegativeMarking(t *testing.T) {
	exam := domain.Exam{
		ID: "exam-1",
		Questions: []domain.ExamQuestion{
			{Question: domain.Question{ID: "q1", CorrectOption: 2, PositiveMarks: 4, NegativeMarks: 1}, Marks: 4, Order: 1},
		},
	}

	cases := []struct {
		name    string
		answers map[string]int
		want    int
	}{
		{"correct", map[string]int{"q1": 2}, 4},
		{"wrong", map[string]int{"q1": 0}, -1},
		{"unanswered", map[string]int{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Calculate(exam, tc.answers)
			if res.Score != tc.want {
				t.Fatalf("expected score %d, got %d", tc.want, res.Score)
			}
		})
	}
}

func TestTwoQuestionScenario(t *testing.T) {
	exam := twoQuestionExam()

	a := Calculate(exam, map[string]int{"q1": 1, "q2": 0})
	if a.Score != 1 || a.Percentage != 20 {
		t.Fatalf("expected score 1 / 20%%, got %d / %d%%", a.Score, a.Percentage)
	}
	if a.CorrectCount != 1 || a.WrongCount != 1 || a.UnansweredCount != 0 {
		t.Fatalf("unexpected counts %+v", a)
	}
	if a.Grade != "F" {
		t.Fatalf("expected F, got %s", a.Grade)
	}

	b := Calculate(exam, map[string]int{"q1": 1, "q2": 3})
	if b.Score != 5 || b.Percentage != 100 || b.Grade != "A+" {
		t.Fatalf("expected 5 / 100%% / A+, got %d / %d%% / %s", b.Score, b.Percentage, b.Grade)
	}
	if b.TotalMarks != 5 || b.TotalQuestions != 2 {
		t.Fatalf("expected 5 marks over 2 questions, got %d over %d", b.TotalMarks, b.TotalQuestions)
	}
}

func TestScoreEqualsSumOfDeltas(t *testing.T) {
	exam := twoQuestionExam()
	sheets := []map[string]int{
		{},
		{"q1": 1},
		{"q2": 0},
		{"q1": 0, "q2": 0},
		{"q1": 1, "q2": 3},
	}
	for _, answers := range sheets {
		res := Calculate(exam, answers)
		sum := 0
		for _, qs := range res.Breakdown {
			sum += qs.Earned
		}
		if sum != res.Score {
			t.Fatalf("answers %v: breakdown sums to %d, score %d", answers, sum, res.Score)
		}
		if res.CorrectCount+res.WrongCount+res.UnansweredCount != res.TotalQuestions {
			t.Fatalf("answers %v: counts do not cover every question: %+v", answers, res)
		}
	}
}

func TestNegativeTotalPassesThrough(t *testing.T) {
	exam := twoQuestionExam()
	exam.Questions[0].Question.NegativeMarks = 2

	res := Calculate(exam, map[string]int{"q1": 0, "q2": 0})
	if res.Score != -3 {
		t.Fatalf("expected unclamped score -3, got %d", res.Score)
	}
	if res.Percentage != -60 {
		t.Fatalf("expected -60%%, got %d", res.Percentage)
	}
}

func TestZeroTotalMarks(t *testing.T) {
	exam := domain.Exam{
		ID: "empty",
		Questions: []domain.ExamQuestion{
			{Question: domain.Question{ID: "q1", CorrectOption: 0}, Order: 1},
		},
	}
	res := Calculate(exam, map[string]int{"q1": 0})
	if res.TotalMarks != 0 || res.Percentage != 0 {
		t.Fatalf("expected zero marks and 0%%, got %d / %d%%", res.TotalMarks, res.Percentage)
	}
	if Percentage(3, 0) != 0 {
		t.Fatalf("expected division guard")
	}
}

func TestNegativeMarksConfiguredAsNegativeNumber(t *testing.T) {
	exam := domain.Exam{Questions: []domain.ExamQuestion{
		{Question: domain.Question{ID: "q1", CorrectOption: 1, PositiveMarks: 4, NegativeMarks: -1}},
	}}
	if got := Calculate(exam, map[string]int{"q1": 3}).Score; got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
}

func TestMarksOverrideFallsBackToQuestionMarks(t *testing.T) {
	exam := domain.Exam{Questions: []domain.ExamQuestion{
		{Question: domain.Question{ID: "q1", CorrectOption: 1, PositiveMarks: 3}},
		{Question: domain.Question{ID: "q2", CorrectOption: 1, PositiveMarks: 3}, Marks: 5},
	}}
	res := Calculate(exam, map[string]int{"q1": 1, "q2": 1})
	if res.Score != 8 || res.TotalMarks != 8 {
		t.Fatalf("expected 8/8, got %d/%d", res.Score, res.TotalMarks)
	}
}

func TestUnknownAnswersIgnored(t *testing.T) {
	res := Calculate(twoQuestionExam(), map[string]int{"q9": 1})
	if res.Score != 0 || res.UnansweredCount != 2 {
		t.Fatalf("expected untouched sheet, got %+v", res)
	}
}

func TestSubjectSummary(t *testing.T) {
	res := Calculate(twoQuestionExam(), map[string]int{"q1": 1, "q2": 0})
	if len(res.Subjects) != 2 {
		t.Fatalf("expected 2 subjects, got %+v", res.Subjects)
	}
	physics, maths := res.Subjects[0], res.Subjects[1]
	if physics.Subject != "physics" || physics.Score != 2 || physics.Correct != 1 {
		t.Fatalf("unexpected physics summary %+v", physics)
	}
	if maths.Subject != "maths" || maths.Score != -1 || maths.Wrong != 1 || maths.MaxMarks != 3 {
		t.Fatalf("unexpected maths summary %+v", maths)
	}
}

func TestGradeBands(t *testing.T) {
	cases := map[int]string{
		100: "A+", 90: "A+", 89: "A", 80: "A", 79: "B+", 70: "B+",
		69: "B", 60: "B", 59: "C+", 50: "C+", 49: "C", 40: "C", 39: "F", 0: "F", -20: "F",
	}
	for pct, want := range cases {
		if got := Grade(pct); got != want {
			t.Fatalf("grade(%d): expected %s, got %s", pct, want, got)
		}
	}
}

func TestPercentageRounding(t *testing.T) {
	if got := Percentage(2, 3); got != 67 {
		t.Fatalf("expected 67, got %d", got)
	}
	if got := Percentage(1, 8); got != 13 {
		t.Fatalf("expected 13 (12.5 rounds up), got %d", got)
	}
}

func twoQuestionExam() domain.Exam {
	return domain.Exam{
		ID:        "exam-1",
		Title:     "Mock test",
		Published: true,
		Questions: []domain.ExamQuestion{
			{Question: domain.Question{ID: "q1", CorrectOption: 1, PositiveMarks: 2, Subject: "physics", Topic: "optics"}, Marks: 2, Order: 1},
			{Question: domain.Question{ID: "q2", CorrectOption: 3, PositiveMarks: 3, NegativeMarks: 1, Subject: "maths", Topic: "algebra"}, Marks: 3, Order: 2},
		},
	}
}
