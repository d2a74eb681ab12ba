package anki

import "fmt"

// Card is one row of the cards table, owned by a note.
type Card struct {
	note     *Note
	template *CardTemplate
	deck     *Deck

	id             int64
	ord            int
	mod            int64
	usn            int
	cardType       int
	queue          int
	due            int64
	interval       int
	factor         int
	reps           int
	lapses         int
	left           int
	originalDue    int64
	originalDeckID int64
	flags          int
	data           string
}

type cardRow struct {
	id     int64
	did    int64
	ord    int
	mod    int64
	usn    int
	typ    int
	queue  int
	due    int64
	ivl    int
	factor int
	reps   int
	lapses int
	left   int
	odue   int64
	odid   int64
	flags  int
	data   string
}

// newCard creates an unsaved new card. It goes to the template's deck when
// one is set and exists, otherwise to the note's deck.
func newCard(n *Note, t *CardTemplate, ord int) *Card {
	deck := n.deck
	if id, ok := t.DeckID(); ok {
		if d := n.collection.deckByID(id); d != nil {
			deck = d
		}
	}
	return &Card{
		note:     n,
		template: t,
		deck:     deck,
		id:       nextID(),
		ord:      ord,
		mod:      nowSeconds(),
		usn:      newObjectUSN,
	}
}

func loadCard(n *Note, t *CardTemplate, r cardRow) *Card {
	return &Card{
		note:           n,
		template:       t,
		deck:           n.collection.deckByID(r.did),
		id:             r.id,
		ord:            r.ord,
		mod:            r.mod,
		usn:            r.usn,
		cardType:       r.typ,
		queue:          r.queue,
		due:            r.due,
		interval:       r.ivl,
		factor:         r.factor,
		reps:           r.reps,
		lapses:         r.lapses,
		left:           r.left,
		originalDue:    r.odue,
		originalDeckID: r.odid,
		flags:          r.flags,
		data:           r.data,
	}
}

func (c *Collection) cardRows(noteID int64) ([]cardRow, error) {
	rows, err := c.db.Query(`
		SELECT id, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data
		FROM cards WHERE nid = ? ORDER BY ord
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for note %d: %w", noteID, err)
	}
	defer rows.Close()

	var out []cardRow
	for rows.Next() {
		var r cardRow
		if err := rows.Scan(&r.id, &r.did, &r.ord, &r.mod, &r.usn, &r.typ, &r.queue, &r.due, &r.ivl,
			&r.factor, &r.reps, &r.lapses, &r.left, &r.odue, &r.odid, &r.flags, &r.data); err != nil {
			return nil, fmt.Errorf("failed to scan card row for note %d: %w", noteID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cards for note %d: %w", noteID, err)
	}
	return out, nil
}

// save writes the card in step with its note: an update when the note row
// already existed, an insert otherwise. An update that touches no row means
// the card was generated after the note was first saved, so it is inserted.
func (c *Card) save(noteExistsAlready bool) error {
	db := c.note.collection.db
	if noteExistsAlready {
		n, err := db.Exec(`
			UPDATE cards SET nid = ?, did = ?, ord = ?, mod = ?, usn = ?, type = ?, queue = ?, due = ?,
				ivl = ?, factor = ?, reps = ?, lapses = ?, left = ?, odue = ?, odid = ?, flags = ?, data = ?
			WHERE id = ?
		`, c.note.id, c.deckID(), c.ord, c.mod, c.usn, c.cardType, c.queue, c.due,
			c.interval, c.factor, c.reps, c.lapses, c.left, c.originalDue, c.originalDeckID, c.flags, c.data, c.id)
		if err != nil {
			return fmt.Errorf("failed to update card %d: %w", c.id, err)
		}
		if n > 0 {
			return nil
		}
	}
	_, err := db.Exec(`
		INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.id, c.note.id, c.deckID(), c.ord, c.mod, c.usn, c.cardType, c.queue, c.due,
		c.interval, c.factor, c.reps, c.lapses, c.left, c.originalDue, c.originalDeckID, c.flags, c.data)
	if err != nil {
		return fmt.Errorf("failed to insert card %d: %w", c.id, err)
	}
	return nil
}

func (c *Card) deckID() int64 {
	if c.deck == nil {
		return defaultDeckID
	}
	return c.deck.id
}

// ID returns the card id.
func (c *Card) ID() int64 { return c.id }

// Note returns the note the card belongs to.
func (c *Card) Note() *Note { return c.note }

// Template returns the card template the card was generated from. Under
// ClozePerReference every cloze card shares the note type's first template.
func (c *Card) Template() *CardTemplate { return c.template }

// Deck returns the deck the card is stored in.
func (c *Card) Deck() *Deck { return c.deck }

// Ordinal is the index of the template the card renders. Under
// ClozePerReference it is the cloze number minus one.
func (c *Card) Ordinal() int { return c.ord }

// Type is the card type column: 0 new, 1 learning, 2 review, 3 relearning.
func (c *Card) Type() int { return c.cardType }

// Queue is the scheduling queue column. Negative values mark suspended
// or buried cards.
func (c *Card) Queue() int { return c.queue }

// Due is a position for new cards and a day number for review cards.
func (c *Card) Due() int64 { return c.due }

// Interval is the review interval in days, negative when in seconds.
func (c *Card) Interval() int { return c.interval }

// Factor is the ease factor in permille, e.g. 2500 for 250%.
func (c *Card) Factor() int { return c.factor }

// Reps counts the card's reviews.
func (c *Card) Reps() int { return c.reps }

// Lapses counts how often the card went from review back to relearning.
func (c *Card) Lapses() int { return c.lapses }
