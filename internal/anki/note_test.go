package anki

import (
	"errors"
	"strings"
	"testing"

	"github.com/conorfennell/ankipack/internal/checksum"
	"github.com/conorfennell/ankipack/internal/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findNoteType(t *testing.T, c *Collection, name string) *NoteType {
	t.Helper()
	nt, err := c.FindNoteTypeBy(ByName(name))
	require.NoError(t, err)
	require.NotNil(t, nt, name)
	return nt
}

func defaultDeck(t *testing.T, c *Collection) *Deck {
	t.Helper()
	d, err := c.FindDeckBy(ByName("Default"))
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func fieldNames(contents []FieldContent) []string {
	names := make([]string, len(contents))
	for i, fc := range contents {
		names[i] = fc.Name
	}
	return names
}

func countRows(t *testing.T, c *Collection, table string) int64 {
	t.Helper()
	n, err := c.DB().Count(table)
	require.NoError(t, err)
	return n
}

func TestNewNote_OneCardPerTemplate(t *testing.T) {
	c := newTestCollection(t)
	nt := findNoteType(t, c, "Basic (and reversed card)")

	note, err := NewNote(nt, defaultDeck(t, c))
	require.NoError(t, err)

	cards := note.Cards()
	require.Len(t, cards, 2)
	assert.NotSame(t, cards[0].Template(), cards[1].Template())
	assert.Equal(t, 0, cards[0].Ordinal())
	assert.Equal(t, 1, cards[1].Ordinal())
	for _, card := range cards {
		assert.Equal(t, int64(1), card.Deck().ID())
		assert.Equal(t, newObjectUSN, card.usn)
	}
	assert.Len(t, note.GUID(), 10)
	assert.Empty(t, note.Tags())
}

func TestNewNote_DifferentCollections(t *testing.T) {
	a := newTestCollection(t)
	b, err := NewCollection(a.DB())
	require.NoError(t, err)

	_, err = NewNote(findNoteType(t, a, "Basic"), defaultDeck(t, b))
	assert.True(t, errors.Is(err, common.ErrValidation), "identical rows still differ by session: %v", err)

	_, err = NewNote(nil, defaultDeck(t, a))
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestNote_FieldAccess(t *testing.T) {
	c := newTestCollection(t)
	note, err := NewNote(findNoteType(t, c, "Basic"), defaultDeck(t, c))
	require.NoError(t, err)

	got, err := note.Field("Front")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, note.SetField("Front", "hola"))
	got, err = note.Field("Front")
	require.NoError(t, err)
	assert.Equal(t, "hola", got)

	assert.True(t, errors.Is(note.SetField("Middle", "x"), common.ErrNotFound))
	_, err = note.Field("Middle")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestNote_FieldContentsFollowNoteTypeOrder(t *testing.T) {
	c := newTestCollection(t)
	nt := findNoteType(t, c, "Basic (optional reversed card)")
	note, err := NewNote(nt, defaultDeck(t, c))
	require.NoError(t, err)
	require.NoError(t, note.SetField("Add Reverse", "y"))
	require.NoError(t, note.SetField("Front", "front"))

	want := []string{"Front", "Back", "Add Reverse"}
	if diff := cmp.Diff(want, fieldNames(note.FieldContents())); diff != "" {
		t.Errorf("fresh note fields (-want +got):\n%s", diff)
	}

	require.NoError(t, note.Save())
	reloaded, err := c.FindNoteBy(note.ID())
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	if diff := cmp.Diff(want, fieldNames(reloaded.FieldContents())); diff != "" {
		t.Errorf("reloaded note fields (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(note.FieldContents(), reloaded.FieldContents()); diff != "" {
		t.Errorf("reloaded values (-want +got):\n%s", diff)
	}
}

func TestNote_SaveJoinsFieldsWithUnitSeparator(t *testing.T) {
	c := newTestCollection(t)
	note, err := NewNote(findNoteType(t, c, "Basic"), defaultDeck(t, c))
	require.NoError(t, err)
	require.NoError(t, note.SetField("Front", "<b>perro</b>"))
	require.NoError(t, note.SetField("Back", "dog"))
	require.NoError(t, note.AddTag("spanish"))
	require.NoError(t, note.AddTag("animals"))
	require.NoError(t, note.Save())

	var flds, sfld, tags string
	var csum int64
	found, err := c.DB().QueryRow("SELECT flds, sfld, csum, tags FROM notes WHERE id = ?", []any{note.ID()}, &flds, &sfld, &csum, &tags)
	require.NoError(t, err)
	require.True(t, found)

	if diff := cmp.Diff([]string{"<b>perro</b>", "dog"}, strings.Split(flds, "\x1f")); diff != "" {
		t.Errorf("flds (-want +got):\n%s", diff)
	}
	assert.Equal(t, "<b>perro</b>", sfld)
	assert.Equal(t, checksum.SortField("<b>perro</b>"), csum)
	assert.Equal(t, "spanish animals", tags)
}

func TestNote_ChecksumDeterminism(t *testing.T) {
	c := newTestCollection(t)
	nt := findNoteType(t, c, "Basic")
	deck := defaultDeck(t, c)

	csumOf := func(front string) int64 {
		note, err := NewNote(nt, deck)
		require.NoError(t, err)
		require.NoError(t, note.SetField("Front", front))
		require.NoError(t, note.Save())
		var csum int64
		_, err = c.DB().QueryRow("SELECT csum FROM notes WHERE id = ?", []any{note.ID()}, &csum)
		require.NoError(t, err)
		return csum
	}

	assert.Equal(t, csumOf("gato"), csumOf("gato"))
	assert.NotEqual(t, csumOf("gato"), csumOf("perro"))
}

func TestNote_SaveUpserts(t *testing.T) {
	c := newTestCollection(t)
	note, err := NewNote(findNoteType(t, c, "Basic (and reversed card)"), defaultDeck(t, c))
	require.NoError(t, err)
	require.NoError(t, note.SetField("Front", "uno"))

	require.NoError(t, note.Save())
	assert.Equal(t, int64(1), countRows(t, c, "notes"))
	assert.Equal(t, int64(2), countRows(t, c, "cards"))

	require.NoError(t, note.SetField("Back", "one"))
	require.NoError(t, note.Save())
	assert.Equal(t, int64(1), countRows(t, c, "notes"))
	assert.Equal(t, int64(2), countRows(t, c, "cards"))

	reloaded, err := c.FindNoteBy(note.ID())
	require.NoError(t, err)
	got, err := reloaded.Field("Back")
	require.NoError(t, err)
	assert.Equal(t, "one", got)
	require.Len(t, reloaded.Cards(), 2)
	assert.Equal(t, "Card 2", reloaded.Cards()[1].Template().Name())
}

func TestFindNoteBy_Missing(t *testing.T) {
	c := newTestCollection(t)

	note, err := c.FindNoteBy(12345)
	require.NoError(t, err)
	assert.Nil(t, note)

	note, err = c.FindNoteByGUID("nope")
	require.NoError(t, err)
	assert.Nil(t, note)
}

func TestFindNoteByGUID(t *testing.T) {
	c := newTestCollection(t)
	note, err := NewNote(findNoteType(t, c, "Basic"), defaultDeck(t, c))
	require.NoError(t, err)
	require.NoError(t, note.SetGUID("knol-abc123"))
	require.NoError(t, note.Save())

	got, err := c.FindNoteByGUID("knol-abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, note.ID(), got.ID())
	assert.Equal(t, "Default", got.Deck().Name())
}

func TestNote_TemplateDeckOverride(t *testing.T) {
	c := newTestCollection(t)
	other, err := c.NewDeck("Reverse only", nil)
	require.NoError(t, err)
	require.NoError(t, other.Save())

	nt := findNoteType(t, c, "Basic (and reversed card)")
	nt.Templates()[1].SetDeck(other)

	note, err := NewNote(nt, defaultDeck(t, c))
	require.NoError(t, err)
	assert.Equal(t, int64(1), note.Cards()[0].Deck().ID())
	assert.Equal(t, other.ID(), note.Cards()[1].Deck().ID())
}

func TestNote_AddTag(t *testing.T) {
	c := newTestCollection(t)
	note, err := NewNote(findNoteType(t, c, "Basic"), defaultDeck(t, c))
	require.NoError(t, err)

	require.NoError(t, note.AddTag("a"))
	require.NoError(t, note.AddTag("a"))
	assert.Equal(t, []string{"a"}, note.Tags())
	assert.True(t, errors.Is(note.AddTag("two words"), common.ErrValidation))
}

// A cloze note type has a single template, so the default policy yields one
// card no matter how many cloze numbers the text uses.
func TestClozeNote_PerTemplatePolicy(t *testing.T) {
	c := newTestCollection(t)
	require.Equal(t, ClozePerTemplate, c.ClozePolicy())

	note, err := NewNote(findNoteType(t, c, "Cloze"), defaultDeck(t, c))
	require.NoError(t, err)
	require.NoError(t, note.SetField("Text", "{{c1::Madrid}} is the capital of {{c2::Spain}}"))
	require.NoError(t, note.Save())

	assert.Len(t, note.Cards(), 1)
	assert.Equal(t, int64(1), countRows(t, c, "cards"))
}

func TestClozeNote_PerReferencePolicy(t *testing.T) {
	c := newTestCollection(t)
	c.SetClozePolicy(ClozePerReference)

	note, err := NewNote(findNoteType(t, c, "Cloze"), defaultDeck(t, c))
	require.NoError(t, err)
	require.NoError(t, note.SetField("Text", "{{c1::Madrid}} is the capital of {{c3::Spain}} {{c1::again}}"))
	require.NoError(t, note.Save())

	var ords []int
	for _, card := range note.Cards() {
		ords = append(ords, card.Ordinal())
	}
	assert.Equal(t, []int{0, 2}, ords)
	assert.Equal(t, int64(2), countRows(t, c, "cards"))

	reloaded, err := c.FindNoteBy(note.ID())
	require.NoError(t, err)
	require.Len(t, reloaded.Cards(), 2)

	require.NoError(t, reloaded.SetField("Text", "{{c3::Spain}} only"))
	require.NoError(t, reloaded.Save())
	require.Len(t, reloaded.Cards(), 1)
	assert.Equal(t, 2, reloaded.Cards()[0].Ordinal())
	assert.Equal(t, int64(1), countRows(t, c, "cards"))
}
