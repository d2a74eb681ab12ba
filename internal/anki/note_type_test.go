package anki

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/conorfennell/ankipack/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardTemplate_FormatValidation(t *testing.T) {
	c := newTestCollection(t)
	nt, err := c.NewNoteType("Q/A", false)
	require.NoError(t, err)
	nt.NewNoteField("Question")
	nt.NewNoteField("Answer")
	tmpl := nt.NewCardTemplate("Card 1")

	tests := []struct {
		name    string
		format  string
		wantErr bool
	}{
		{"plain field", "{{Question}}", false},
		{"builtin and field", "{{FrontSide}}<hr id=answer>{{Answer}}", false},
		{"section markers", "{{#Answer}}{{Answer}}{{/Answer}}", false},
		{"filter prefix", "{{text:Question}}", false},
		{"comment ignored", "{{!Nothing}}{{Question}}", false},
		{"unknown field", "{{Missing}}", true},
		{"cloze on non-cloze", "{{cloze:Question}}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tmpl.SetQuestionFormat(tt.format)
			if tt.wantErr {
				assert.True(t, errors.Is(err, common.ErrValidation), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.format, tmpl.QuestionFormat())
		})
	}

	err = tmpl.SetAnswerFormat("{{Nope}}")
	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.Empty(t, tmpl.AnswerFormat(), "rejected format is not stored")
}

func TestCardTemplate_ClozeAllowedOnClozeType(t *testing.T) {
	c := newTestCollection(t)
	nt, err := c.NewNoteType("My cloze", true)
	require.NoError(t, err)
	nt.NewNoteField("Text")
	tmpl := nt.NewCardTemplate("Cloze")

	require.NoError(t, tmpl.SetQuestionFormat("{{cloze:Text}}"))
}

func TestNoteType_NewFieldsAndTemplatesAppend(t *testing.T) {
	c := newTestCollection(t)
	nt, err := c.NewNoteType("Vocab", false)
	require.NoError(t, err)

	front := nt.NewNoteField("Word")
	back := nt.NewNoteField("Meaning")
	nt.NewNoteField("Meaning")
	assert.Equal(t, 0, front.Ordinal())
	assert.Equal(t, 1, back.Ordinal())
	assert.Equal(t, []string{"Word", "Meaning", "Meaning"}, nt.FieldNames())

	t1 := nt.NewCardTemplate("Forward")
	t2 := nt.NewCardTemplate("Reverse")
	assert.Equal(t, 0, t1.Ordinal())
	assert.Equal(t, 1, t2.Ordinal())
}

func TestNoteType_SortField(t *testing.T) {
	c := newTestCollection(t)
	nt, err := c.FindNoteTypeBy(ByName("Basic"))
	require.NoError(t, err)

	assert.Equal(t, "Front", nt.SortFieldName())
	require.NoError(t, nt.SetSortField("Back"))
	assert.Equal(t, "Back", nt.SortFieldName())

	err = nt.SetSortField("Middle")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestNoteType_Requirements(t *testing.T) {
	c := newTestCollection(t)
	nt, err := c.NewNoteType("Reversible", false)
	require.NoError(t, err)
	nt.NewNoteField("Front")
	nt.NewNoteField("Back")
	require.NoError(t, nt.NewCardTemplate("Card 1").SetQuestionFormat("{{Front}}"))
	require.NoError(t, nt.NewCardTemplate("Card 2").SetQuestionFormat("{{Back}}"))

	raw, err := nt.encode()
	require.NoError(t, err)
	var out struct {
		Req  json.RawMessage `json:"req"`
		Type int             `json:"type"`
		Tags json.RawMessage `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.JSONEq(t, `[[0,"any",[0]],[1,"any",[1]]]`, string(out.Req))
	assert.Zero(t, out.Type)
	assert.JSONEq(t, `[]`, string(out.Tags))
}

func TestNoteType_SaveReplacesInCatalog(t *testing.T) {
	c := newTestCollection(t)
	nt, err := c.NewNoteType("Vocab", false)
	require.NoError(t, err)
	nt.NewNoteField("Word")
	require.NoError(t, nt.Save())

	nt.SetCSS(".card { color: red; }")
	require.NoError(t, nt.Save())
	assert.Len(t, c.NoteTypes(), 6)

	reloaded, err := NewCollection(c.DB())
	require.NoError(t, err)
	got, err := reloaded.FindNoteTypeBy(ByID(nt.ID()))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ".card { color: red; }", got.CSS())
	assert.Equal(t, []string{"Word"}, got.FieldNames())
}
