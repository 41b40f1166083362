// Package summary renders a finished reflection as plain text for review
// screens, downloads and email bodies.
package summary

import (
	"strconv"
	"strings"

	"github.com/PabloGalante/farum-reflect/internal/domain"
)

// NotProvided stands in for an unanswered field so every summary of a
// template has the same shape.
const NotProvided = "Not provided"

// Project renders answers in template step order. Output depends only on
// the inputs, never on map iteration order.
func Project(tmpl *domain.Template, answers domain.AnswerMap) string {
	var b strings.Builder

	b.WriteString(tmpl.Title)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("=", len([]rune(tmpl.Title))))
	b.WriteByte('\n')

	for i, step := range tmpl.Steps {
		b.WriteByte('\n')
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(step.Title)
		b.WriteByte('\n')

		for _, f := range step.Fields {
			label := f.Label
			if label == "" {
				label = string(f.ID)
			}
			b.WriteString("- ")
			b.WriteString(label)
			b.WriteString(": ")
			b.WriteString(indent(render(f, answers[f.ID])))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func render(f domain.FieldDefinition, v domain.Value) string {
	if v.IsEmpty() {
		return NotProvided
	}
	switch v.Type() {
	case domain.ValueNumber:
		n, _ := v.Number()
		s := strconv.FormatFloat(n, 'f', -1, 64)
		if f.Kind == domain.KindScale && f.HasRange() {
			s += " / " + strconv.FormatFloat(f.Max, 'f', -1, 64)
		}
		return s
	case domain.ValueList:
		items, _ := v.List()
		kept := items[:0]
		for _, item := range items {
			if strings.TrimSpace(item) != "" {
				kept = append(kept, strings.TrimSpace(item))
			}
		}
		return strings.Join(kept, ", ")
	default:
		s, _ := v.Text()
		return strings.TrimSpace(s)
	}
}

// indent keeps multi-line answers under their bullet.
func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n  ")
}
