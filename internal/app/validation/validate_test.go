package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PabloGalante/farum-reflect/internal/app/validation"
	"github.com/PabloGalante/farum-reflect/internal/domain"
)

func TestValidateStepRequired(t *testing.T) {
	step := domain.StepDefinition{
		ID: "s",
		Fields: []domain.FieldDefinition{
			{ID: "f1", Kind: domain.KindText, Required: true},
			{ID: "f2", Kind: domain.KindText},
		},
	}

	errs := validation.ValidateStep(step, domain.AnswerMap{"f1": domain.TextValue("   ")})
	assert.Equal(t, domain.ErrorMap{"f1": validation.MsgRequired}, errs)

	errs = validation.ValidateStep(step, domain.AnswerMap{"f1": domain.TextValue("ok")})
	assert.Empty(t, errs)
}

func TestValidateStepMinLengthUsesTrimmedText(t *testing.T) {
	step := domain.StepDefinition{Fields: []domain.FieldDefinition{
		{ID: "f2", Kind: domain.KindText, Required: true, MinLength: 10},
	}}

	errs := validation.ValidateStep(step, domain.AnswerMap{"f2": domain.TextValue("short     ")})
	assert.Equal(t, validation.MinLengthMessage(10), errs["f2"])

	errs = validation.ValidateStep(step, domain.AnswerMap{"f2": domain.TextValue("this is long enough")})
	assert.Empty(t, errs)
}

func TestValidateStepOptionalMinLength(t *testing.T) {
	step := domain.StepDefinition{Fields: []domain.FieldDefinition{
		{ID: "notes", Kind: domain.KindText, MinLength: 20},
	}}

	assert.Empty(t, validation.ValidateStep(step, domain.AnswerMap{}))
	assert.NotEmpty(t, validation.ValidateStep(step, domain.AnswerMap{"notes": domain.TextValue("brief")}))
}

func TestValidateStepIgnoresMinLengthOnNonText(t *testing.T) {
	step := domain.StepDefinition{Fields: []domain.FieldDefinition{
		{ID: "energy", Kind: domain.KindScale, Required: true, MinLength: 50},
		{ID: "skills", Kind: domain.KindMultiSelect, Required: true, MinLength: 50},
	}}

	errs := validation.ValidateStep(step, domain.AnswerMap{
		"energy": domain.NumberValue(3),
		"skills": domain.ListValue("a"),
	})
	assert.Empty(t, errs)
}

func TestValidateStepScaleRange(t *testing.T) {
	step := domain.StepDefinition{Fields: []domain.FieldDefinition{
		{ID: "stress", Kind: domain.KindScale, Required: true, Min: 1, Max: 10},
	}}

	assert.Equal(t, validation.RangeMessage(1, 10),
		validation.ValidateStep(step, domain.AnswerMap{"stress": domain.NumberValue(11)})["stress"])
	assert.Empty(t, validation.ValidateStep(step, domain.AnswerMap{"stress": domain.NumberValue(10)}))
	assert.Empty(t, validation.ValidateStep(step, domain.AnswerMap{"stress": domain.TextValue("4")}))
	assert.NotEmpty(t, validation.ValidateStep(step, domain.AnswerMap{"stress": domain.TextValue("high")}))
}

func TestValidateStepChoices(t *testing.T) {
	step := domain.StepDefinition{Fields: []domain.FieldDefinition{
		{ID: "setting", Kind: domain.KindSingleChoice, Required: true, Options: []string{"medical", "legal"}},
		{ID: "tools", Kind: domain.KindMultiSelect, Options: []string{"glossary", "notes"}},
	}}

	errs := validation.ValidateStep(step, domain.AnswerMap{
		"setting": domain.TextValue("sports"),
		"tools":   domain.ListValue("glossary", "dictionary"),
	})
	assert.Equal(t, domain.ErrorMap{"setting": validation.MsgOption, "tools": validation.MsgOption}, errs)

	errs = validation.ValidateStep(step, domain.AnswerMap{
		"setting": domain.TextValue("legal"),
		"tools":   domain.ListValue("notes"),
	})
	assert.Empty(t, errs)
}

func TestValidateTemplateCoversEveryStep(t *testing.T) {
	tmpl := &domain.Template{
		ID: "t",
		Steps: []domain.StepDefinition{
			{ID: "a", Fields: []domain.FieldDefinition{{ID: "f1", Required: true}}},
			{ID: "b", Fields: []domain.FieldDefinition{{ID: "f2", Required: true}}},
		},
	}

	errs := validation.ValidateTemplate(tmpl, domain.AnswerMap{"f2": domain.TextValue("x")})
	assert.Equal(t, domain.ErrorMap{"f1": validation.MsgRequired}, errs)
}
