package domain

// FieldKind tells the validation engine and the summary how to read a value.
type FieldKind string

const (
	KindText         FieldKind = "text"
	KindScale        FieldKind = "scale"
	KindSingleChoice FieldKind = "single_choice"
	KindMultiSelect  FieldKind = "multi_select"
)

// FieldDefinition describes one question of a step.
type FieldDefinition struct {
	ID        FieldID   `yaml:"id" json:"id"`
	Label     string    `yaml:"label" json:"label"`
	Kind      FieldKind `yaml:"kind" json:"kind"`
	Required  bool      `yaml:"required" json:"required"`
	MinLength int       `yaml:"min_length,omitempty" json:"min_length,omitempty"`

	// Options restricts single_choice and multi_select answers.
	Options []string `yaml:"options,omitempty" json:"options,omitempty"`

	// Min and Max bound a scale answer. Both zero means unbounded.
	Min float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max float64 `yaml:"max,omitempty" json:"max,omitempty"`

	// Shared marks a field id that is intentionally declared by more than one step.
	Shared bool `yaml:"shared,omitempty" json:"shared,omitempty"`
}

// HasRange reports whether the field declares scale bounds.
func (f FieldDefinition) HasRange() bool {
	return f.Min != 0 || f.Max != 0
}

// StepDefinition is one page of a reflection.
type StepDefinition struct {
	ID     string            `yaml:"id" json:"id"`
	Title  string            `yaml:"title" json:"title"`
	Fields []FieldDefinition `yaml:"fields" json:"fields"`
}

// Template is the static definition of a reflection type. Templates are
// never mutated once loaded.
type Template struct {
	ID          TemplateID       `yaml:"id" json:"id"`
	Title       string           `yaml:"title" json:"title"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []StepDefinition `yaml:"steps" json:"steps"`
}

// LastIndex returns the index of the final step.
func (t *Template) LastIndex() int {
	return len(t.Steps) - 1
}

// Field looks a field up by id across all steps.
func (t *Template) Field(id FieldID) (FieldDefinition, bool) {
	for _, step := range t.Steps {
		for _, f := range step.Fields {
			if f.ID == id {
				return f, true
			}
		}
	}
	return FieldDefinition{}, false
}

// HasField reports whether any step declares the field.
func (t *Template) HasField(id FieldID) bool {
	_, ok := t.Field(id)
	return ok
}
