package domain

import (
	"encoding/json"
	"fmt"
)

// AnswerState is the tag of a QuestionStatus.
type AnswerState int

const (
	NotAnswered AnswerState = iota
	Answered
	MarkedForReview
)

func (s AnswerState) String() string {
	switch s {
	case NotAnswered:
		return "not_answered"
	case Answered:
		return "answered"
	case MarkedForReview:
		return "marked_for_review"
	default:
		return fmt.Sprintf("AnswerState(%d)", int(s))
	}
}

func parseAnswerState(raw string) (AnswerState, error) {
	switch raw {
	case "", "not_answered":
		return NotAnswered, nil
	case "answered":
		return Answered, nil
	case "marked_for_review":
		return MarkedForReview, nil
	default:
		return NotAnswered, fmt.Errorf("unknown answer state %q", raw)
	}
}

// QuestionStatus is the per-question progress of a submission:
// NotAnswered, Answered(option) or MarkedForReview(option?), plus time spent in seconds.
// Build values with the constructors so the option is present exactly when the state allows it.
type QuestionStatus struct {
	State     AnswerState
	option    int
	hasOption bool
	TimeSpent int
}

// StatusNotAnswered builds a NotAnswered status.
func StatusNotAnswered(timeSpent int) QuestionStatus {
	return QuestionStatus{State: NotAnswered, TimeSpent: timeSpent}
}

// StatusAnswered builds an Answered status for the selected option.
func StatusAnswered(option, timeSpent int) QuestionStatus {
	return QuestionStatus{State: Answered, option: option, hasOption: true, TimeSpent: timeSpent}
}

// StatusMarkedForReview builds a MarkedForReview status; option may be nil.
func StatusMarkedForReview(option *int, timeSpent int) QuestionStatus {
	st := QuestionStatus{State: MarkedForReview, TimeSpent: timeSpent}
	if option != nil {
		st.option = *option
		st.hasOption = true
	}
	return st
}

// Option returns the selected option, if any.
func (s QuestionStatus) Option() (int, bool) {
	return s.option, s.hasOption
}

// Validate checks the variant is well formed.
func (s QuestionStatus) Validate() error {
	if s.TimeSpent < 0 {
		return fmt.Errorf("negative time spent %d", s.TimeSpent)
	}
	switch s.State {
	case NotAnswered:
		if s.hasOption {
			return fmt.Errorf("not answered status carries option %d", s.option)
		}
	case Answered:
		if !s.hasOption {
			return fmt.Errorf("answered status without option")
		}
	case MarkedForReview:
	default:
		return fmt.Errorf("unknown answer state %d", int(s.State))
	}
	if s.hasOption && s.option < 0 {
		return fmt.Errorf("negative option %d", s.option)
	}
	return nil
}

type questionStatusJSON struct {
	State     string `json:"state"`
	Option    *int   `json:"option,omitempty"`
	TimeSpent int    `json:"timeSpent"`
}

func (s QuestionStatus) MarshalJSON() ([]byte, error) {
	out := questionStatusJSON{State: s.State.String(), TimeSpent: s.TimeSpent}
	if s.hasOption {
		opt := s.option
		out.Option = &opt
	}
	return json.Marshal(out)
}

func (s *QuestionStatus) UnmarshalJSON(data []byte) error {
	var in questionStatusJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	state, err := parseAnswerState(in.State)
	if err != nil {
		return err
	}
	switch state {
	case NotAnswered:
		*s = StatusNotAnswered(in.TimeSpent)
	case Answered:
		if in.Option == nil {
			return fmt.Errorf("answered status without option")
		}
		*s = StatusAnswered(*in.Option, in.TimeSpent)
	case MarkedForReview:
		*s = StatusMarkedForReview(in.Option, in.TimeSpent)
	}
	return nil
}
