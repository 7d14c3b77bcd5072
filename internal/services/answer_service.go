package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/quentel/formulaire/internal/models"
)

const dateLayout = "2006-01-02"

// ValidateAnswer checks one submitted value against its question's kind and
// configuration and returns the normalized tagged value. An absent value on
// an optional question normalizes to an empty value that the aggregator
// skips. No side effects.
func ValidateAnswer(q *models.Question, raw json.RawMessage) (models.Value, error) {
	desc, err := Describe(q.Kind)
	if err != nil {
		return models.Value{}, err
	}
	if isEmptyRaw(raw) {
		if q.Required {
			return models.Value{}, NewAnswerError(ErrorRequiredAnswerMissing, q.ID, "question "+strconv.Quote(q.Title)+" is required")
		}
		return models.Value{Kind: models.ValueNone}, nil
	}

	switch desc.Shape {
	case ShapeText:
		return validateTextAnswer(q, raw)
	case ShapeOption:
		return validateOptionAnswer(q, raw)
	case ShapeOptionSet:
		return validateOptionSetAnswer(q, raw)
	case ShapeNumber:
		return validateNumberAnswer(q, raw)
	case ShapeDate:
		return validateDateAnswer(q, raw)
	}
	return models.Value{}, NewAnswerError(ErrorInvalidValue, q.ID, "unhandled answer shape "+string(desc.Shape))
}

// isEmptyRaw treats a missing payload, JSON null, the empty string and the
// empty array as "no answer".
func isEmptyRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", `""`, "[]":
		return true
	}
	return false
}

func validateTextAnswer(q *models.Question, raw json.RawMessage) (models.Value, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.Value{}, NewAnswerError(ErrorInvalidValue, q.ID, "expected a string value")
	}
	if q.Kind == models.KindEmail {
		return validateEmail(q, s)
	}
	if q.Config.MaxLength != nil {
		if n := utf8.RuneCountInString(s); n > *q.Config.MaxLength {
			return models.Value{}, NewAnswerError(ErrorAnswerTooLong, q.ID, fmt.Sprintf("answer is %d characters, limit is %d", n, *q.Config.MaxLength))
		}
	}
	return models.Value{Kind: models.ValueText, Text: s}, nil
}

// validateEmail applies the local-part@domain grammar; the domain must
// contain an interior dot.
func validateEmail(q *models.Question, s string) (models.Value, error) {
	addr := strings.TrimSpace(s)
	at := strings.Index(addr, "@")
	bad := at <= 0 || at != strings.LastIndex(addr, "@") ||
		strings.ContainsAny(addr, " \t\n")
	if !bad {
		domain := addr[at+1:]
		dot := strings.Index(domain, ".")
		bad = dot <= 0 || strings.HasSuffix(domain, ".")
	}
	if bad {
		return models.Value{}, NewAnswerError(ErrorInvalidEmail, q.ID, strconv.Quote(addr)+" is not a valid email address")
	}
	return models.Value{Kind: models.ValueText, Text: addr}, nil
}

func validateOptionAnswer(q *models.Question, raw json.RawMessage) (models.Value, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.Value{}, NewAnswerError(ErrorInvalidOptionSelected, q.ID, "expected a single option label")
	}
	s = strings.TrimSpace(s)
	for _, opt := range q.Config.Options {
		if s == opt {
			return models.Value{Kind: models.ValueOption, Text: s}, nil
		}
	}
	return models.Value{}, NewAnswerError(ErrorInvalidOptionSelected, q.ID, strconv.Quote(s)+" is not a configured option")
}

func validateOptionSetAnswer(q *models.Question, raw json.RawMessage) (models.Value, error) {
	var selections []string
	if err := json.Unmarshal(raw, &selections); err != nil {
		return models.Value{}, NewAnswerError(ErrorInvalidOptionSelected, q.ID, "expected an array of option labels")
	}
	chosen := make(map[string]struct{}, len(selections))
	for _, sel := range selections {
		sel = strings.TrimSpace(sel)
		if !containsOption(q.Config.Options, sel) {
			return models.Value{}, NewAnswerError(ErrorInvalidOptionSelected, q.ID, strconv.Quote(sel)+" is not a configured option")
		}
		if _, dup := chosen[sel]; dup {
			return models.Value{}, NewAnswerError(ErrorInvalidOptionSelected, q.ID, "option "+strconv.Quote(sel)+" selected twice")
		}
		chosen[sel] = struct{}{}
	}
	// Canonical order: the configured option order, independent of the
	// order selections arrived in.
	normalized := make([]string, 0, len(chosen))
	for _, opt := range q.Config.Options {
		if _, ok := chosen[opt]; ok {
			normalized = append(normalized, opt)
		}
	}
	return models.Value{Kind: models.ValueOptionSet, Options: normalized}, nil
}

func containsOption(options []string, label string) bool {
	for _, opt := range options {
		if opt == label {
			return true
		}
	}
	return false
}

func validateNumberAnswer(q *models.Question, raw json.RawMessage) (models.Value, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		// Numeric strings are accepted, everything else is not.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return models.Value{}, NewAnswerError(ErrorInvalidValue, q.ID, "expected a numeric value")
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return models.Value{}, NewAnswerError(ErrorInvalidValue, q.ID, strconv.Quote(s)+" is not numeric")
		}
		n = parsed
	}
	if q.Config.MinValue != nil && n < *q.Config.MinValue {
		return models.Value{}, NewAnswerError(ErrorOutOfRange, q.ID, fmt.Sprintf("%v is below the minimum %v", n, *q.Config.MinValue))
	}
	if q.Config.MaxValue != nil && n > *q.Config.MaxValue {
		return models.Value{}, NewAnswerError(ErrorOutOfRange, q.ID, fmt.Sprintf("%v is above the maximum %v", n, *q.Config.MaxValue))
	}
	return models.Value{Kind: models.ValueNumber, Number: n}, nil
}

func validateDateAnswer(q *models.Question, raw json.RawMessage) (models.Value, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.Value{}, NewAnswerError(ErrorInvalidDate, q.ID, "expected an ISO 8601 date string")
	}
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return models.Value{}, NewAnswerError(ErrorInvalidDate, q.ID, strconv.Quote(s)+" is not a valid ISO 8601 date")
	}
	return models.Value{Kind: models.ValueDate, Date: d}, nil
}
