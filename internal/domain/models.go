package domain

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID         string   `json:"id"`
	Topic      string   `json:"topic"`
	Difficulty string   `json:"difficulty,omitempty"`
	Prompt     string   `json:"prompt"`
	Options    []Option `json:"options"`
	Points     int      `json:"points"` // defaults to 1 if zero
}

// Weight is the score awarded for a correct answer.
func (q Question) Weight() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Option looks up an option by id.
func (q Question) Option(optionID string) (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return Option{}, false
}

// Public strips correctness flags so the question can be shown to a participant.
func (q Question) Public() PublicQuestion {
	options := make([]PublicOption, 0, len(q.Options))
	for _, opt := range q.Options {
		options = append(options, PublicOption{ID: opt.ID, Text: opt.Text})
	}
	return PublicQuestion{
		ID:      q.ID,
		Topic:   q.Topic,
		Prompt:  q.Prompt,
		Options: options,
		Points:  q.Weight(),
	}
}

// PublicOption is an answer option without its correctness flag.
type PublicOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PublicQuestion is the client-facing view of a Question.
type PublicQuestion struct {
	ID      string         `json:"id"`
	Topic   string         `json:"topic"`
	Prompt  string         `json:"prompt"`
	Options []PublicOption `json:"options"`
	Points  int            `json:"points"`
}
