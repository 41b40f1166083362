// Package validation checks answers against a template's field rules.
// Everything here is pure: no stores, no clocks.
package validation

import (
	"fmt"
	"strconv"

	"github.com/PabloGalante/farum-reflect/internal/domain"
)

const (
	MsgRequired = "This field is required."
	MsgOption   = "Please choose one of the listed options."
)

// MinLengthMessage is the error for text shorter than the field's minimum.
func MinLengthMessage(n int) string {
	return fmt.Sprintf("Please write at least %d characters.", n)
}

// RangeMessage is the error for a scale answer out of bounds.
func RangeMessage(min, max float64) string {
	return fmt.Sprintf("Please choose a value between %s and %s.", formatNumber(min), formatNumber(max))
}

// ValidateStep returns field -> message for every failing field of the step.
// An empty map means the step is valid.
func ValidateStep(step domain.StepDefinition, answers domain.AnswerMap) domain.ErrorMap {
	errs := domain.ErrorMap{}
	for _, f := range step.Fields {
		if msg, ok := validateField(f, answers[f.ID]); !ok {
			errs[f.ID] = msg
		}
	}
	return errs
}

// ValidateTemplate runs ValidateStep over every step and merges the result.
func ValidateTemplate(tmpl *domain.Template, answers domain.AnswerMap) domain.ErrorMap {
	errs := domain.ErrorMap{}
	for _, step := range tmpl.Steps {
		for id, msg := range ValidateStep(step, answers) {
			if _, seen := errs[id]; !seen {
				errs[id] = msg
			}
		}
	}
	return errs
}

func validateField(f domain.FieldDefinition, v domain.Value) (string, bool) {
	if v.IsEmpty() {
		if f.Required {
			return MsgRequired, false
		}
		// optional and unanswered: nothing else to check
		return "", true
	}

	switch f.Kind {
	case domain.KindText, "":
		if f.MinLength > 0 && v.TrimmedLength() < f.MinLength {
			return MinLengthMessage(f.MinLength), false
		}
	case domain.KindScale:
		n, ok := v.Number()
		if !ok {
			// scales edited through a text input arrive as strings
			text, _ := v.Text()
			parsed, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return RangeMessage(f.Min, f.Max), false
			}
			n = parsed
		}
		if f.HasRange() && (n < f.Min || n > f.Max) {
			return RangeMessage(f.Min, f.Max), false
		}
	case domain.KindSingleChoice:
		if len(f.Options) == 0 {
			return "", true
		}
		s, ok := v.Text()
		if !ok || !contains(f.Options, s) {
			return MsgOption, false
		}
	case domain.KindMultiSelect:
		if len(f.Options) == 0 {
			return "", true
		}
		items, ok := v.List()
		if !ok {
			return MsgOption, false
		}
		for _, item := range items {
			if !contains(f.Options, item) {
				return MsgOption, false
			}
		}
	}
	return "", true
}

func contains(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
