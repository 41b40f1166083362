package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-reflect/internal/domain"
)

func TestValueIsEmpty(t *testing.T) {
	cases := []struct {
		name  string
		value domain.Value
		empty bool
	}{
		{"zero value", domain.Value{}, true},
		{"blank text", domain.TextValue("   \n\t"), true},
		{"text", domain.TextValue(" ok "), false},
		{"zero number", domain.NumberValue(0), false},
		{"empty list", domain.ListValue(), true},
		{"list of blanks", domain.ListValue(" ", ""), true},
		{"list", domain.ListValue("", "a"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.empty, tc.value.IsEmpty())
		})
	}
}

func TestValueEncodesAsPlainJSON(t *testing.T) {
	answers := domain.AnswerMap{
		"mood":   domain.NumberValue(7),
		"notes":  domain.TextValue("calm"),
		"skills": domain.ListValue("glossary", "breathing"),
	}

	b, err := json.Marshal(answers)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mood":7,"notes":"calm","skills":["glossary","breathing"]}`, string(b))

	var back domain.AnswerMap
	require.NoError(t, json.Unmarshal(b, &back))
	n, ok := back["mood"].Number()
	assert.True(t, ok)
	assert.Equal(t, 7.0, n)
	list, ok := back["skills"].List()
	assert.True(t, ok)
	assert.Equal(t, []string{"glossary", "breathing"}, list)
}

func TestValueRejectsObjects(t *testing.T) {
	var v domain.Value
	err := json.Unmarshal([]byte(`{"nested":true}`), &v)
	assert.Error(t, err)
}

func TestTrimmedLengthCountsRunes(t *testing.T) {
	assert.Equal(t, 5, domain.TextValue("  ñandú ").TrimmedLength())
	assert.Equal(t, 0, domain.NumberValue(12345).TrimmedLength())
}

func TestRecordIDForIsStable(t *testing.T) {
	id := domain.SessionID("session-1")
	assert.Equal(t, domain.RecordIDFor(id), domain.RecordIDFor(id))
	assert.NotEqual(t, domain.RecordIDFor(id), domain.RecordIDFor("session-2"))
}

func TestDraftRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sess := &domain.ReflectionSession{
		ID:               "s1",
		TemplateID:       "debrief",
		Answers:          domain.AnswerMap{"f1": domain.TextValue("ok")},
		CurrentStepIndex: 1,
		CompletedSteps:   map[int]bool{0: true},
		Errors:           domain.ErrorMap{},
		Status:           domain.StatusDraft,
		StartedAt:        now,
		LastMutatedAt:    now,
	}

	blob, err := domain.EncodeDraft(domain.NewDraft(sess))
	require.NoError(t, err)

	d, err := domain.DecodeDraft(blob)
	require.NoError(t, err)
	back := d.Session()
	assert.Equal(t, sess.Answers, back.Answers)
	assert.Equal(t, 1, back.CurrentStepIndex)
	assert.True(t, back.CompletedSteps[0])
	assert.True(t, now.Equal(back.StartedAt))
}

func TestDecodeDraftRejectsNewerVersion(t *testing.T) {
	_, err := domain.DecodeDraft([]byte(`{"version":99,"session_id":"s1"}`))
	assert.ErrorIs(t, err, domain.ErrDraftVersion)
}

func TestDecodeDraftDefaultsLegacyVersion(t *testing.T) {
	d, err := domain.DecodeDraft([]byte(`{"session_id":"s1","template_id":"t"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.DraftVersion, d.Version)
	assert.NotNil(t, d.Answers)
}
