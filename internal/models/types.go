package models

import "time"

// QuestionKind is the closed set of supported question types.
type QuestionKind string

const (
	KindShortText      QuestionKind = "short_text"
	KindLongText       QuestionKind = "long_text"
	KindSingleChoice   QuestionKind = "single_choice"
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindDropdown       QuestionKind = "dropdown"
	KindNumber         QuestionKind = "number"
	KindDate           QuestionKind = "date"
	KindEmail          QuestionKind = "email"
)

// Form is a questionnaire owned by a single user. Questions belong
// exclusively to their form and are deleted with it.
type Form struct {
	ID               string      `json:"id"`
	OwnerID          string      `json:"owner_id,omitempty"`
	Title            string      `json:"title"`
	Description      string      `json:"description,omitempty"`
	AcceptsResponses bool        `json:"accepts_responses"`
	Questions        []*Question `json:"questions,omitempty"`
	ResponseCount    int         `json:"response_count"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// QuestionConfig carries the kind-specific configuration. Which fields a
// given kind admits is decided by the registry; the schema validator
// rejects definitions that set fields their kind does not allow.
type QuestionConfig struct {
	Options   []string `json:"options,omitempty"`
	MinValue  *float64 `json:"min_value,omitempty"`
	MaxValue  *float64 `json:"max_value,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
}

// Question belongs to a form. Kind is immutable after creation; Order is
// unique within the form and defines display and validation order.
type Question struct {
	ID          string         `json:"id"`
	FormID      string         `json:"form_id"`
	Kind        QuestionKind   `json:"kind"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Required    bool           `json:"is_required"`
	Order       int            `json:"order"`
	Config      QuestionConfig `json:"config"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ValueKind tags the normalized shape of an answer value.
type ValueKind string

const (
	ValueNone      ValueKind = "none"
	ValueText      ValueKind = "text"
	ValueNumber    ValueKind = "number"
	ValueDate      ValueKind = "date"
	ValueOption    ValueKind = "option"
	ValueOptionSet ValueKind = "option_set"
)

// Value is the tagged variant produced by answer validation. Exactly the
// field matching Kind is meaningful; ValueNone marks an absent optional
// answer.
type Value struct {
	Kind    ValueKind `json:"kind"`
	Text    string    `json:"text,omitempty"`
	Number  float64   `json:"number,omitempty"`
	Date    time.Time `json:"date,omitempty"`
	Options []string  `json:"options,omitempty"`
}

// IsEmpty reports whether the value represents "no answer".
func (v Value) IsEmpty() bool { return v.Kind == ValueNone || v.Kind == "" }

// Answer pairs a question with its validated, normalized value. Answers are
// frozen at acceptance time and never revalidated.
type Answer struct {
	QuestionID string `json:"question_id"`
	Value      Value  `json:"value"`
}

// Response is a write-once record of one accepted submission. It references
// exactly the questions of its form at submission time.
type Response struct {
	ID           string    `json:"id"`
	FormID       string    `json:"form_id"`
	RespondentID string    `json:"respondent_id,omitempty"`
	Answers      []Answer  `json:"answers"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// AggregateStats is the running per-question summary. Only the fields for
// the question's kind are populated: OptionCounts for choice kinds,
// Sum/Min/Max for numbers (valid while Count > 0), MinDate/MaxDate for
// dates, Samples for text kinds. Counts are never decremented.
type AggregateStats struct {
	QuestionID   string         `json:"question_id"`
	Kind         QuestionKind   `json:"kind"`
	Count        int            `json:"count"`
	OptionCounts map[string]int `json:"option_counts,omitempty"`
	Sum          float64        `json:"sum,omitempty"`
	Min          float64        `json:"min,omitempty"`
	Max          float64        `json:"max,omitempty"`
	MinDate      time.Time      `json:"min_date"`
	MaxDate      time.Time      `json:"max_date"`
	Samples      []string       `json:"samples,omitempty"`
}

// FormStats summarizes submission activity for a form.
type FormStats struct {
	TotalResponses  int     `json:"total_responses"`
	RecentResponses int     `json:"recent_responses"`
	CompletionRate  float64 `json:"completion_rate"`
}
