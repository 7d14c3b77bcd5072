package integration_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"reflect"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quentel/formulaire/internal/db"
	"github.com/quentel/formulaire/internal/models"
	"github.com/quentel/formulaire/internal/services"
)

func newStore(t *testing.T) *db.SQLiteStore {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// A single connection keeps the in-memory database alive for the
	// whole test.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.RunMigrations(sqlDB, ""); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	store, err := db.NewSQLiteStore(sqlDB)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	return store
}

func TestAuthorSubmitAggregateFlow(t *testing.T) {
	store := newStore(t)
	agg := services.NewAggregator(store)
	forms := services.NewFormService(store, agg)
	submissions := services.NewSubmissionService(store, agg)

	form, err := forms.CreateForm("owner1", "Enquête de satisfaction", "Merci de prendre quelques minutes")
	if err != nil {
		t.Fatalf("CreateForm: %v", err)
	}

	choice, err := forms.AddQuestion(form.ID, services.QuestionDefinition{
		Kind: models.KindSingleChoice, Title: "Do you agree?", Required: true, Order: 0,
		Config: models.QuestionConfig{Options: []string{"Yes", "No"}},
	})
	if err != nil {
		t.Fatalf("AddQuestion(choice): %v", err)
	}
	multi, err := forms.AddQuestion(form.ID, services.QuestionDefinition{
		Kind: models.KindMultipleChoice, Title: "Which apply?", Order: 1,
		Config: models.QuestionConfig{Options: []string{"A", "B", "C"}},
	})
	if err != nil {
		t.Fatalf("AddQuestion(multi): %v", err)
	}
	number, err := forms.AddQuestion(form.ID, services.QuestionDefinition{
		Kind: models.KindNumber, Title: "Rate 1-5", Order: 2,
		Config: models.QuestionConfig{MinValue: f(1), MaxValue: f(5)},
	})
	if err != nil {
		t.Fatalf("AddQuestion(number): %v", err)
	}

	result, err := submissions.Submit(context.Background(), form.ID, "resp1", []services.AnswerInput{
		{QuestionID: choice.ID, Value: json.RawMessage(`"Yes"`)},
		{QuestionID: multi.ID, Value: json.RawMessage(`["B","A"]`)},
		{QuestionID: number.ID, Value: json.RawMessage(`4`)},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}

	// The response round-trips through sqlite with normalized values.
	stored, err := forms.GetResponse(result.Response.ID)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if stored.RespondentID != "resp1" {
		t.Fatalf("respondent = %q", stored.RespondentID)
	}
	values := map[string]models.Value{}
	for _, ans := range stored.Answers {
		values[ans.QuestionID] = ans.Value
	}
	if v := values[multi.ID]; !reflect.DeepEqual(v.Options, []string{"A", "B"}) {
		t.Fatalf("multi-choice round trip = %v, want [A B]", v.Options)
	}
	if v := values[number.ID]; v.Number != 4 {
		t.Fatalf("number round trip = %v", v.Number)
	}

	// Aggregates resume from sqlite in a fresh aggregator.
	agg2 := services.NewAggregator(store)
	choiceStats, err := agg2.Snapshot(choice)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if choiceStats.OptionCounts["Yes"] != 1 || choiceStats.OptionCounts["No"] != 0 {
		t.Fatalf("choice stats = %v", choiceStats.OptionCounts)
	}
	numberStats, _ := agg2.Snapshot(number)
	if numberStats.Count != 1 || numberStats.Sum != 4 || numberStats.Min != 4 || numberStats.Max != 4 {
		t.Fatalf("number stats = %+v", numberStats)
	}

	// Closing the form blocks further submissions.
	closed := false
	if _, err := forms.UpdateForm(form.ID, services.FormUpdate{AcceptsResponses: &closed}); err != nil {
		t.Fatalf("UpdateForm: %v", err)
	}
	_, err = submissions.Submit(context.Background(), form.ID, "", []services.AnswerInput{
		{QuestionID: choice.ID, Value: json.RawMessage(`"No"`)},
	})
	if !services.HasCode(err, services.ErrorFormClosed) {
		t.Fatalf("expected form_closed, got %v", err)
	}

	stats, err := forms.Stats(form.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalResponses != 1 {
		t.Fatalf("total responses = %d, want 1", stats.TotalResponses)
	}
}

func TestDeleteFormCascades(t *testing.T) {
	store := newStore(t)
	agg := services.NewAggregator(store)
	forms := services.NewFormService(store, agg)
	submissions := services.NewSubmissionService(store, agg)

	form, _ := forms.CreateForm("owner1", "Throwaway", "")
	q, err := forms.AddQuestion(form.ID, services.QuestionDefinition{
		Kind: models.KindShortText, Title: "Name", Required: true, Order: 0,
	})
	if err != nil {
		t.Fatalf("AddQuestion: %v", err)
	}
	if _, err := submissions.Submit(context.Background(), form.ID, "", []services.AnswerInput{
		{QuestionID: q.ID, Value: json.RawMessage(`"Ada"`)},
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := forms.DeleteForm(form.ID); err != nil {
		t.Fatalf("DeleteForm: %v", err)
	}
	if f, err := store.GetForm(form.ID); err != nil || f != nil {
		t.Fatalf("form survived deletion: %v %v", f, err)
	}
	if qs, _ := store.ListQuestions(form.ID); len(qs) != 0 {
		t.Fatalf("questions survived deletion: %d", len(qs))
	}
	if rs, _ := store.ListResponses(form.ID); len(rs) != 0 {
		t.Fatalf("responses survived deletion: %d", len(rs))
	}
	if bucket, _ := store.LoadAggregateBucket(q.ID); bucket != nil {
		t.Fatalf("aggregate bucket survived deletion")
	}
}

func f(v float64) *float64 { return &v }
