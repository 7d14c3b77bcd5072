package services

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quentel/formulaire/internal/models"
)

// SubmissionStore abstracts the persistence operations the submission
// workflow requires. SaveResponse must be a single atomic write.
type SubmissionStore interface {
	GetForm(id string) (*models.Form, error)
	SaveResponse(ctx context.Context, r *models.Response) error
}

// AnswerInput mirrors the inbound payload for one answer.
type AnswerInput struct {
	QuestionID string          `json:"question_id"`
	Value      json.RawMessage `json:"value"`
}

// SubmissionResult carries the committed response plus any non-fatal
// aggregation warnings.
type SubmissionResult struct {
	Response *models.Response
	Warnings []string
}

// SubmissionService hosts the all-or-nothing submission workflow: a
// response is persisted only if every answer passes validation, and
// aggregation runs strictly after the commit.
type SubmissionService struct {
	store       SubmissionStore
	agg         *Aggregator
	now         func() time.Time
	idGenerator func() string
}

func NewSubmissionService(store SubmissionStore, agg *Aggregator) *SubmissionService {
	return &SubmissionService{
		store:       store,
		agg:         agg,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: func() string { return shortID(12) },
	}
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// Submit validates an entire response against the form's question set and,
// on full acceptance, persists it and feeds the answers to the aggregator.
// The first validation failure aborts the whole submission with nothing
// persisted. Aggregation failures after the commit surface as warnings.
func (s *SubmissionService) Submit(ctx context.Context, formID, respondentID string, answers []AnswerInput) (*SubmissionResult, error) {
	form, err := s.store.GetForm(formID)
	if err != nil {
		return nil, err
	}
	if form == nil {
		return nil, NewNotFoundError("form " + formID + " not found")
	}
	if !form.AcceptsResponses {
		return nil, NewValidationError(ErrorFormClosed, "form "+formID+" is not accepting responses")
	}

	questions := make(map[string]*models.Question, len(form.Questions))
	for _, q := range form.Questions {
		questions[q.ID] = q
	}

	supplied := make(map[string]json.RawMessage, len(answers))
	for _, in := range answers {
		if _, ok := questions[in.QuestionID]; !ok {
			return nil, NewAnswerError(ErrorUnknownQuestion, in.QuestionID, "question "+in.QuestionID+" does not belong to form "+formID)
		}
		if _, dup := supplied[in.QuestionID]; dup {
			return nil, NewAnswerError(ErrorDuplicateAnswer, in.QuestionID, "question "+in.QuestionID+" answered more than once")
		}
		supplied[in.QuestionID] = in.Value
	}

	for _, q := range form.Questions {
		if q.Required && isEmptyRaw(supplied[q.ID]) {
			return nil, NewAnswerError(ErrorRequiredAnswerMissing, q.ID, "question "+strconv.Quote(q.Title)+" is required")
		}
	}

	// Validate in question order so the first failure is deterministic.
	ordered := make([]*models.Question, 0, len(supplied))
	for id := range supplied {
		ordered = append(ordered, questions[id])
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	accepted := make([]models.Answer, 0, len(ordered))
	for _, q := range ordered {
		value, err := ValidateAnswer(q, supplied[q.ID])
		if err != nil {
			return nil, err
		}
		if value.IsEmpty() {
			continue
		}
		accepted = append(accepted, models.Answer{QuestionID: q.ID, Value: value})
	}

	// The atomicity boundary: an abort before the persist leaves no trace.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	response := &models.Response{
		ID:           s.idGenerator(),
		FormID:       form.ID,
		RespondentID: respondentID,
		Answers:      accepted,
		SubmittedAt:  s.now(),
	}
	if err := s.store.SaveResponse(ctx, response); err != nil {
		return nil, err
	}

	result := &SubmissionResult{Response: response}
	for _, ans := range accepted {
		if err := s.agg.Record(questions[ans.QuestionID], ans.Value); err != nil {
			result.Warnings = append(result.Warnings, "question "+ans.QuestionID+": "+err.Error())
		}
	}
	return result, nil
}
