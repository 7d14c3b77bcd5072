package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/quentel/formulaire/internal/models"
)

type stubSubmissionStore struct {
	form    *models.Form
	saved   []*models.Response
	saveErr error
}

func (s *stubSubmissionStore) GetForm(id string) (*models.Form, error) {
	if s.form != nil && s.form.ID == id {
		return s.form, nil
	}
	return nil, nil
}

func (s *stubSubmissionStore) SaveResponse(ctx context.Context, r *models.Response) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, r)
	return nil
}

func surveyForm() *models.Form {
	return &models.Form{
		ID:               "F1",
		Title:            "Satisfaction survey",
		AcceptsResponses: true,
		Questions: []*models.Question{
			{
				ID: "Q1", FormID: "F1", Kind: models.KindSingleChoice, Title: "Do you agree?",
				Required: true, Order: 0,
				Config: models.QuestionConfig{Options: []string{"Yes", "No"}},
			},
			{
				ID: "Q2", FormID: "F1", Kind: models.KindNumber, Title: "Rate 1-5",
				Order: 1,
				Config: models.QuestionConfig{MinValue: fptr(1), MaxValue: fptr(5)},
			},
			{
				ID: "Q3", FormID: "F1", Kind: models.KindLongText, Title: "Comments",
				Order: 2,
			},
		},
	}
}

func newSubmissionFixture(form *models.Form) (*SubmissionService, *stubSubmissionStore, *Aggregator) {
	store := &stubSubmissionStore{form: form}
	agg := NewAggregator(nil)
	svc := NewSubmissionService(store, agg)
	svc.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	svc.idGenerator = func() string { return "RESP00000001" }
	return svc, store, agg
}

func TestSubmitSuccess(t *testing.T) {
	form := surveyForm()
	svc, store, agg := newSubmissionFixture(form)

	result, err := svc.Submit(context.Background(), "F1", "", []AnswerInput{
		{QuestionID: "Q1", Value: json.RawMessage(`"Yes"`)},
		{QuestionID: "Q2", Value: json.RawMessage(`4`)},
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
	if result.Response.ID != "RESP00000001" {
		t.Fatalf("response id = %q", result.Response.ID)
	}
	if len(store.saved) != 1 {
		t.Fatalf("responses persisted = %d, want 1", len(store.saved))
	}
	if len(store.saved[0].Answers) != 2 {
		t.Fatalf("answers persisted = %d, want 2", len(store.saved[0].Answers))
	}

	stats, err := agg.Snapshot(form.Questions[0])
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if stats.OptionCounts["Yes"] != 1 || stats.OptionCounts["No"] != 0 {
		t.Fatalf("choice stats = %v, want Yes:1 No:0", stats.OptionCounts)
	}
	numStats, _ := agg.Snapshot(form.Questions[1])
	if numStats.Count != 1 || numStats.Sum != 4 {
		t.Fatalf("number stats = %+v", numStats)
	}
}

func TestSubmitFormClosed(t *testing.T) {
	form := surveyForm()
	form.AcceptsResponses = false
	svc, store, agg := newSubmissionFixture(form)

	_, err := svc.Submit(context.Background(), "F1", "", []AnswerInput{
		{QuestionID: "Q1", Value: json.RawMessage(`"Yes"`)},
	})
	if !HasCode(err, ErrorFormClosed) {
		t.Fatalf("expected form_closed, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("closed form persisted a response")
	}
	stats, _ := agg.Snapshot(form.Questions[0])
	if stats.Count != 0 {
		t.Fatalf("closed form updated stats: %+v", stats)
	}
}

func TestSubmitFormNotFound(t *testing.T) {
	svc, _, _ := newSubmissionFixture(surveyForm())
	_, err := svc.Submit(context.Background(), "missing", "", nil)
	if !HasCode(err, ErrorNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestSubmitRequiredMissingIsAtomic(t *testing.T) {
	form := surveyForm()
	svc, store, agg := newSubmissionFixture(form)

	// Q1 is required; answering only Q2 must leave no trace anywhere.
	_, err := svc.Submit(context.Background(), "F1", "", []AnswerInput{
		{QuestionID: "Q2", Value: json.RawMessage(`3`)},
	})
	ve, ok := AsValidationError(err)
	if !ok || ve.Code != ErrorRequiredAnswerMissing {
		t.Fatalf("expected required_answer_missing, got %v", err)
	}
	if ve.QuestionID != "Q1" {
		t.Fatalf("error names question %q, want Q1", ve.QuestionID)
	}
	if len(store.saved) != 0 {
		t.Fatalf("rejected submission persisted a response")
	}
	numStats, _ := agg.Snapshot(form.Questions[1])
	if numStats.Count != 0 {
		t.Fatalf("rejected submission updated stats: %+v", numStats)
	}
}

func TestSubmitRequiredNullValue(t *testing.T) {
	svc, _, _ := newSubmissionFixture(surveyForm())
	_, err := svc.Submit(context.Background(), "F1", "", []AnswerInput{
		{QuestionID: "Q1", Value: json.RawMessage(`null`)},
	})
	if !HasCode(err, ErrorRequiredAnswerMissing) {
		t.Fatalf("expected required_answer_missing, got %v", err)
	}
}

func TestSubmitUnknownQuestion(t *testing.T) {
	svc, store, _ := newSubmissionFixture(surveyForm())
	_, err := svc.Submit(context.Background(), "F1", "", []AnswerInput{
		{QuestionID: "Q1", Value: json.RawMessage(`"Yes"`)},
		{QuestionID: "GHOST", Value: json.RawMessage(`"x"`)},
	})
	if !HasCode(err, ErrorUnknownQuestion) {
		t.Fatalf("expected unknown_question, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("rejected submission persisted a response")
	}
}

func TestSubmitDuplicateAnswer(t *testing.T) {
	svc, _, _ := newSubmissionFixture(surveyForm())
	_, err := svc.Submit(context.Background(), "F1", "", []AnswerInput{
		{QuestionID: "Q1", Value: json.RawMessage(`"Yes"`)},
		{QuestionID: "Q1", Value: json.RawMessage(`"No"`)},
	})
	if !HasCode(err, ErrorDuplicateAnswer) {
		t.Fatalf("expected duplicate_answer, got %v", err)
	}
}

func TestSubmitFirstInvalidAnswerAborts(t *testing.T) {
	form := surveyForm()
	svc, store, agg := newSubmissionFixture(form)

	_, err := svc.Submit(context.Background(), "F1", "", []AnswerInput{
		{QuestionID: "Q1", Value: json.RawMessage(`"Yes"`)},
		{QuestionID: "Q2", Value: json.RawMessage(`7`)},
	})
	if !HasCode(err, ErrorOutOfRange) {
		t.Fatalf("expected out_of_range, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("partially valid submission persisted a response")
	}
	// The valid Q1 answer must not have been aggregated either.
	stats, _ := agg.Snapshot(form.Questions[0])
	if stats.Count != 0 {
		t.Fatalf("aborted submission updated stats: %+v", stats)
	}
}

func TestSubmitOptionalUnansweredSkipped(t *testing.T) {
	form := surveyForm()
	svc, store, _ := newSubmissionFixture(form)

	result, err := svc.Submit(context.Background(), "F1", "", []AnswerInput{
		{QuestionID: "Q1", Value: json.RawMessage(`"No"`)},
		{QuestionID: "Q3", Value: json.RawMessage(`""`)},
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if len(result.Response.Answers) != 1 {
		t.Fatalf("answers = %d, want 1 (empty optional answer dropped)", len(result.Response.Answers))
	}
	if len(store.saved) != 1 {
		t.Fatalf("responses persisted = %d, want 1", len(store.saved))
	}
}

func TestSubmitPersistenceFailure(t *testing.T) {
	form := surveyForm()
	svc, store, agg := newSubmissionFixture(form)
	store.saveErr = errors.New("db unavailable")

	_, err := svc.Submit(context.Background(), "F1", "", []AnswerInput{
		{QuestionID: "Q1", Value: json.RawMessage(`"Yes"`)},
	})
	if err == nil || !errors.Is(err, store.saveErr) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	stats, _ := agg.Snapshot(form.Questions[0])
	if stats.Count != 0 {
		t.Fatalf("failed persistence still updated stats: %+v", stats)
	}
}

func TestSubmitAggregationFailureIsWarning(t *testing.T) {
	form := surveyForm()
	store := &stubSubmissionStore{form: form}
	agg := NewAggregator(&recordingAggStore{fail: true})
	svc := NewSubmissionService(store, agg)

	result, err := svc.Submit(context.Background(), "F1", "", []AnswerInput{
		{QuestionID: "Q1", Value: json.RawMessage(`"Yes"`)},
	})
	if err != nil {
		t.Fatalf("aggregation failure must not fail the submission: %v", err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("response not persisted despite aggregation-only failure")
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", result.Warnings)
	}
}

func TestSubmitCancelledContext(t *testing.T) {
	form := surveyForm()
	svc, store, agg := newSubmissionFixture(form)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Submit(ctx, "F1", "", []AnswerInput{
		{QuestionID: "Q1", Value: json.RawMessage(`"Yes"`)},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("cancelled submission persisted a response")
	}
	stats, _ := agg.Snapshot(form.Questions[0])
	if stats.Count != 0 {
		t.Fatalf("cancelled submission updated stats: %+v", stats)
	}
}
