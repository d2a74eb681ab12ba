package anki

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/conorfennell/ankipack/internal/checksum"
	"github.com/conorfennell/ankipack/internal/common"
	"github.com/google/uuid"
)

// unitSeparator joins field values in the notes.flds column.
const unitSeparator = "\x1f"

var clozeMarker = regexp.MustCompile(`\{\{c(\d+)::`)

// Note is one row of the notes table together with the cards it owns.
type Note struct {
	collection *Collection
	noteType   *NoteType
	deck       *Deck

	id       int64
	guid     string
	mod      int64
	usn      int
	tags     []string
	contents map[string]string
	flags    int
	data     string
	cards    []*Card
}

// FieldContent is one field value of a note.
type FieldContent struct {
	Name  string
	Value string
}

// NewNote creates an unsaved note of noteType whose cards go to deck. Both
// must come from the same collection instance.
func NewNote(noteType *NoteType, deck *Deck) (*Note, error) {
	if noteType == nil || deck == nil {
		return nil, fmt.Errorf("%w: a note needs a note type and a deck", common.ErrValidation)
	}
	if noteType.collection == nil || deck.collection == nil ||
		noteType.collection.session != deck.collection.session {
		return nil, fmt.Errorf("%w: note type %q and deck %q belong to different collections",
			common.ErrValidation, noteType.name, deck.name)
	}

	n := &Note{
		collection: deck.collection,
		noteType:   noteType,
		deck:       deck,
		id:         nextID(),
		guid:       newGUID(),
		mod:        nowSeconds(),
		usn:        newObjectUSN,
		tags:       []string{},
		contents:   map[string]string{},
	}
	for _, t := range noteType.templates {
		n.cards = append(n.cards, newCard(n, t, t.ordinal))
	}
	return n, nil
}

func newGUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

type noteRow struct {
	id    int64
	guid  string
	mid   int64
	mod   int64
	usn   int
	tags  string
	flds  string
	flags int
	data  string
}

// FindNoteBy loads the note with the given id and its cards from the
// database, or returns nil when there is no such note. Notes are not cached.
func (c *Collection) FindNoteBy(id int64) (*Note, error) {
	return c.findNote("id = ?", id)
}

// FindNoteByGUID loads the note with the given guid, or returns nil.
func (c *Collection) FindNoteByGUID(guid string) (*Note, error) {
	return c.findNote("guid = ?", guid)
}

func (c *Collection) findNote(where string, arg any) (*Note, error) {
	var r noteRow
	found, err := c.db.QueryRow(`
		SELECT id, guid, mid, mod, usn, tags, flds, flags, data
		FROM notes WHERE `+where+` LIMIT 1
	`, []any{arg}, &r.id, &r.guid, &r.mid, &r.mod, &r.usn, &r.tags, &r.flds, &r.flags, &r.data)
	if err != nil {
		return nil, fmt.Errorf("failed to find note by %s: %w", where, err)
	}
	if !found {
		return nil, nil
	}
	cards, err := c.cardRows(r.id)
	if err != nil {
		return nil, err
	}
	return c.loadNote(r, cards)
}

func (c *Collection) noteExists(id int64) (bool, error) {
	var one int
	found, err := c.db.QueryRow("SELECT 1 FROM notes WHERE id = ?", []any{id}, &one)
	if err != nil {
		return false, fmt.Errorf("failed to look up note %d: %w", id, err)
	}
	return found, nil
}

// loadNote rebuilds a note from its stored row and card rows.
func (c *Collection) loadNote(r noteRow, cardRows []cardRow) (*Note, error) {
	nt, err := c.FindNoteTypeBy(ByID(r.mid))
	if err != nil {
		return nil, err
	}
	if nt == nil {
		return nil, fmt.Errorf("%w: note %d has unknown note type %d", common.ErrNotFound, r.id, r.mid)
	}

	n := &Note{
		collection: c,
		noteType:   nt,
		id:         r.id,
		guid:       r.guid,
		mod:        r.mod,
		usn:        r.usn,
		tags:       strings.Fields(r.tags),
		contents:   map[string]string{},
		flags:      r.flags,
		data:       r.data,
	}
	names := nt.FieldNames()
	for i, value := range strings.Split(r.flds, unitSeparator) {
		if i < len(names) {
			n.contents[names[i]] = value
		}
	}

	for _, row := range cardRows {
		var t *CardTemplate
		switch {
		case nt.cloze && len(nt.templates) > 0:
			t = nt.templates[0]
		case row.ord < len(nt.templates):
			t = nt.templates[row.ord]
		default:
			return nil, fmt.Errorf("%w: card %d has ordinal %d but note type %q has %d templates",
				common.ErrNotFound, row.id, row.ord, nt.name, len(nt.templates))
		}
		n.cards = append(n.cards, loadCard(n, t, row))
	}

	n.deck = c.noteDeck(n)
	for _, card := range n.cards {
		if card.deck == nil {
			card.deck = n.deck
		}
	}
	return n, nil
}

// noteDeck picks the deck of a reloaded note: its first card's deck, then
// the note type's deck, then the first deck of the catalog.
func (c *Collection) noteDeck(n *Note) *Deck {
	if len(n.cards) > 0 && n.cards[0].deck != nil {
		return n.cards[0].deck
	}
	if id, ok := n.noteType.DeckID(); ok {
		if d := c.deckByID(id); d != nil {
			return d
		}
	}
	if len(c.decks) > 0 {
		return c.decks[0]
	}
	return nil
}

// Field returns the value of the named field.
func (n *Note) Field(name string) (string, error) {
	if !n.noteType.HasField(name) {
		return "", fmt.Errorf("%w: note type %q has no field %q", common.ErrNotFound, n.noteType.name, name)
	}
	return n.contents[name], nil
}

// SetField sets the value of the named field.
func (n *Note) SetField(name, value string) error {
	if !n.noteType.HasField(name) {
		return fmt.Errorf("%w: note type %q has no field %q", common.ErrNotFound, n.noteType.name, name)
	}
	n.contents[name] = value
	return nil
}

// FieldContents returns one entry per field of the note type, in field order.
// Fields never set are empty.
func (n *Note) FieldContents() []FieldContent {
	out := make([]FieldContent, 0, len(n.noteType.fields))
	for _, f := range n.noteType.fields {
		out = append(out, FieldContent{Name: f.name, Value: n.contents[f.name]})
	}
	return out
}

// joinedFields is the notes.flds value.
func (n *Note) joinedFields() string {
	values := make([]string, 0, len(n.noteType.fields))
	for _, f := range n.noteType.fields {
		values = append(values, n.contents[f.name])
	}
	return strings.Join(values, unitSeparator)
}

// SortFieldValue returns the content of the note type's sort field.
func (n *Note) SortFieldValue() string {
	return n.contents[n.noteType.SortFieldName()]
}

// AddTag adds tag unless the note already has it. Tags are stored
// space-separated, so they may not contain whitespace.
func (n *Note) AddTag(tag string) error {
	if tag == "" || strings.ContainsAny(tag, " \t\r\n") {
		return fmt.Errorf("%w: invalid tag %q", common.ErrValidation, tag)
	}
	for _, t := range n.tags {
		if t == tag {
			return nil
		}
	}
	n.tags = append(n.tags, tag)
	return nil
}

// SetGUID replaces the note's generated guid, for callers that derive guids
// from content.
func (n *Note) SetGUID(guid string) error {
	if guid == "" {
		return fmt.Errorf("%w: guid must not be empty", common.ErrValidation)
	}
	n.guid = guid
	return nil
}

// Save inserts the note, or updates it when a row with its id exists, and
// then saves its cards the same way.
func (n *Note) Save() error {
	exists, err := n.collection.noteExists(n.id)
	if err != nil {
		return err
	}
	if n.noteType.cloze && n.collection.clozePolicy == ClozePerReference {
		if err := n.syncClozeCards(exists); err != nil {
			return err
		}
	}

	sortField := n.SortFieldValue()
	if exists {
		_, err = n.collection.db.Exec(`
			UPDATE notes SET guid = ?, mid = ?, mod = ?, usn = ?, tags = ?,
				flds = ?, sfld = ?, csum = ?, flags = ?, data = ?
			WHERE id = ?
		`, n.guid, n.noteType.id, n.mod, n.usn, strings.Join(n.tags, " "),
			n.joinedFields(), sortField, checksum.SortField(sortField), n.flags, n.data, n.id)
	} else {
		_, err = n.collection.db.Exec(`
			INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, n.id, n.guid, n.noteType.id, n.mod, n.usn, strings.Join(n.tags, " "),
			n.joinedFields(), sortField, checksum.SortField(sortField), n.flags, n.data)
	}
	if err != nil {
		return fmt.Errorf("failed to save note %d: %w", n.id, err)
	}

	for _, card := range n.cards {
		if err := card.save(exists); err != nil {
			return err
		}
	}
	return nil
}

// clozeNumbers returns the distinct cloze numbers used in the note's fields.
func (n *Note) clozeNumbers() []int {
	seen := map[int]bool{}
	var nums []int
	for _, f := range n.noteType.fields {
		for _, m := range clozeMarker.FindAllStringSubmatch(n.contents[f.name], -1) {
			num, err := strconv.Atoi(m[1])
			if err != nil || num < 1 || seen[num] {
				continue
			}
			seen[num] = true
			nums = append(nums, num)
		}
	}
	sort.Ints(nums)
	return nums
}

// syncClozeCards makes the note own exactly one card per cloze number,
// keeping cards whose number is still present. A note without markers keeps
// a single card for the first number.
func (n *Note) syncClozeCards(exists bool) error {
	if len(n.noteType.templates) == 0 {
		return nil
	}
	nums := n.clozeNumbers()
	if len(nums) == 0 {
		nums = []int{1}
	}

	byOrd := map[int]*Card{}
	for _, card := range n.cards {
		byOrd[card.ord] = card
	}
	var cards []*Card
	for _, num := range nums {
		ord := num - 1
		if card, ok := byOrd[ord]; ok {
			cards = append(cards, card)
			delete(byOrd, ord)
			continue
		}
		cards = append(cards, newCard(n, n.noteType.templates[0], ord))
	}
	if exists {
		for _, stale := range byOrd {
			if _, err := n.collection.db.Exec("DELETE FROM cards WHERE id = ?", stale.id); err != nil {
				return fmt.Errorf("failed to delete card %d: %w", stale.id, err)
			}
		}
	}
	n.cards = cards
	return nil
}

// Tags returns the note's tags.
func (n *Note) Tags() []string {
	return append([]string(nil), n.tags...)
}

// Cards returns the note's cards.
func (n *Note) Cards() []*Card {
	return append([]*Card(nil), n.cards...)
}

func (n *Note) ID() int64               { return n.id }
func (n *Note) GUID() string            { return n.guid }
func (n *Note) NoteType() *NoteType     { return n.noteType }
func (n *Note) Deck() *Deck             { return n.deck }
func (n *Note) Collection() *Collection { return n.collection }
func (n *Note) LastModified() int64     { return n.mod }
func (n *Note) USN() int                { return n.usn }
func (n *Note) Flags() int              { return n.flags }
func (n *Note) Data() string            { return n.data }
