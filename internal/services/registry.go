package services

import (
	"github.com/quentel/formulaire/internal/models"
)

// AnswerShape is the value shape a question kind expects.
type AnswerShape string

const (
	ShapeText      AnswerShape = "text"
	ShapeNumber    AnswerShape = "number"
	ShapeDate      AnswerShape = "date"
	ShapeOption    AnswerShape = "option"
	ShapeOptionSet AnswerShape = "option_set"
)

// KindDescriptor declares, for one question kind, the expected answer shape
// and which configuration fields the kind admits. The table below is the
// single registration point: the schema validator, answer validator and
// aggregator all dispatch on it.
type KindDescriptor struct {
	Kind            models.QuestionKind
	Shape           AnswerShape
	NeedsOptions    bool
	AllowsRange     bool
	AllowsMaxLength bool
}

var kindTable = map[models.QuestionKind]KindDescriptor{
	models.KindShortText:      {Kind: models.KindShortText, Shape: ShapeText, AllowsMaxLength: true},
	models.KindLongText:       {Kind: models.KindLongText, Shape: ShapeText},
	models.KindSingleChoice:   {Kind: models.KindSingleChoice, Shape: ShapeOption, NeedsOptions: true},
	models.KindMultipleChoice: {Kind: models.KindMultipleChoice, Shape: ShapeOptionSet, NeedsOptions: true},
	models.KindDropdown:       {Kind: models.KindDropdown, Shape: ShapeOption, NeedsOptions: true},
	models.KindNumber:         {Kind: models.KindNumber, Shape: ShapeNumber, AllowsRange: true},
	models.KindDate:           {Kind: models.KindDate, Shape: ShapeDate},
	models.KindEmail:          {Kind: models.KindEmail, Shape: ShapeText},
}

// Describe returns the descriptor for kind, or an unknown_kind error for
// values outside the closed set.
func Describe(kind models.QuestionKind) (KindDescriptor, error) {
	d, ok := kindTable[kind]
	if !ok {
		return KindDescriptor{}, NewValidationError(ErrorUnknownKind, "unknown question kind "+string(kind))
	}
	return d, nil
}

// KnownKind reports whether kind belongs to the closed set.
func KnownKind(kind models.QuestionKind) bool {
	_, ok := kindTable[kind]
	return ok
}
