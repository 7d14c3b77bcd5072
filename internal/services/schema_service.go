package services

import (
	"fmt"
	"strings"

	"github.com/quentel/formulaire/internal/models"
)

// ValidateQuestionDefinition checks a question definition against the rules
// of its kind and returns the normalized configuration (trimmed option
// labels) ready for storage. Order uniqueness within the form is enforced
// by the form service; this validator only rejects negative values. Pure,
// no I/O.
func ValidateQuestionDefinition(kind models.QuestionKind, cfg models.QuestionConfig, title string, order int) (models.QuestionConfig, error) {
	desc, err := Describe(kind)
	if err != nil {
		return models.QuestionConfig{}, err
	}
	if strings.TrimSpace(title) == "" {
		return models.QuestionConfig{}, NewFieldError(ErrorInvalidTitle, "title", "title must not be empty")
	}
	if order < 0 {
		return models.QuestionConfig{}, NewFieldError(ErrorInvalidOrder, "order", fmt.Sprintf("order must be non-negative, got %d", order))
	}

	normalized := models.QuestionConfig{}

	if desc.NeedsOptions {
		opts, err := normalizeOptions(cfg.Options)
		if err != nil {
			return models.QuestionConfig{}, err
		}
		normalized.Options = opts
	} else if len(cfg.Options) > 0 {
		return models.QuestionConfig{}, NewFieldError(ErrorUnexpectedConfigField, "options", string(kind)+" does not take options")
	}

	if desc.AllowsRange {
		if cfg.MinValue != nil && cfg.MaxValue != nil && *cfg.MinValue > *cfg.MaxValue {
			return models.QuestionConfig{}, NewFieldError(ErrorInvalidRange, "min_value", fmt.Sprintf("min %v exceeds max %v", *cfg.MinValue, *cfg.MaxValue))
		}
		normalized.MinValue = cfg.MinValue
		normalized.MaxValue = cfg.MaxValue
	} else if cfg.MinValue != nil || cfg.MaxValue != nil {
		return models.QuestionConfig{}, NewFieldError(ErrorUnexpectedConfigField, "min_value", string(kind)+" does not take a numeric range")
	}

	if desc.AllowsMaxLength {
		if cfg.MaxLength != nil && *cfg.MaxLength <= 0 {
			return models.QuestionConfig{}, NewFieldError(ErrorInvalidRange, "max_length", fmt.Sprintf("max_length must be positive, got %d", *cfg.MaxLength))
		}
		normalized.MaxLength = cfg.MaxLength
	} else if cfg.MaxLength != nil {
		return models.QuestionConfig{}, NewFieldError(ErrorUnexpectedConfigField, "max_length", string(kind)+" does not take max_length")
	}

	return normalized, nil
}

func normalizeOptions(raw []string) ([]string, error) {
	if len(raw) < 2 {
		return nil, NewFieldError(ErrorInvalidOptions, "options", fmt.Sprintf("at least 2 options required, got %d", len(raw)))
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, label := range raw {
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, NewFieldError(ErrorInvalidOptions, "options", fmt.Sprintf("option %d is empty", i))
		}
		if _, dup := seen[label]; dup {
			return nil, NewFieldError(ErrorInvalidOptions, "options", fmt.Sprintf("duplicate option %q", label))
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out, nil
}
