package services

import (
	"testing"

	"github.com/quentel/formulaire/internal/models"
)

func TestDescribeCoversClosedSet(t *testing.T) {
	cases := []struct {
		kind  models.QuestionKind
		shape AnswerShape
	}{
		{models.KindShortText, ShapeText},
		{models.KindLongText, ShapeText},
		{models.KindSingleChoice, ShapeOption},
		{models.KindMultipleChoice, ShapeOptionSet},
		{models.KindDropdown, ShapeOption},
		{models.KindNumber, ShapeNumber},
		{models.KindDate, ShapeDate},
		{models.KindEmail, ShapeText},
	}
	for _, tc := range cases {
		desc, err := Describe(tc.kind)
		if err != nil {
			t.Fatalf("Describe(%s) returned error: %v", tc.kind, err)
		}
		if desc.Shape != tc.shape {
			t.Fatalf("Describe(%s).Shape = %s, want %s", tc.kind, desc.Shape, tc.shape)
		}
	}
}

func TestDescribeChoiceKindsNeedOptions(t *testing.T) {
	for _, kind := range []models.QuestionKind{models.KindSingleChoice, models.KindMultipleChoice, models.KindDropdown} {
		desc, err := Describe(kind)
		if err != nil {
			t.Fatalf("Describe(%s) returned error: %v", kind, err)
		}
		if !desc.NeedsOptions {
			t.Fatalf("Describe(%s).NeedsOptions = false, want true", kind)
		}
	}
}

func TestDescribeUnknownKind(t *testing.T) {
	_, err := Describe("likert")
	if !HasCode(err, ErrorUnknownKind) {
		t.Fatalf("expected unknown_kind error, got %v", err)
	}
	if KnownKind("likert") {
		t.Fatalf("KnownKind(likert) = true, want false")
	}
}
