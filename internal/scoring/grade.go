package scoring

type gradeBand struct {
	min   int
	label string
}

var gradeBands = []gradeBand{
	{90, "A+"},
	{80, "A"},
	{70, "B+"},
	{60, "B"},
	{50, "C+"},
	{40, "C"},
}

// Grade buckets a percentage into a letter grade.
func Grade(percentage int) string {
	for _, b := range gradeBands {
		if percentage >= b.min {
			return b.label
		}
	}
	return "F"
}
