package anki

import (
	"encoding/json"
	"fmt"

	"github.com/conorfennell/ankipack/internal/common"
)

// Deck is a named bucket of cards from the col.decks catalog.
type Deck struct {
	collection *Collection

	id               int64
	name             string
	mod              int64
	usn              int
	learnToday       [2]int
	reviewToday      [2]int
	newToday         [2]int
	timeToday        [2]int
	collapsed        bool
	browserCollapsed bool
	description      string
	dynamic          int
	optionsGroupID   int64
	extendNew        int
	extendReview     int
	extra            object
}

type deckJSON struct {
	ID               int64  `json:"id"`
	Mod              int64  `json:"mod"`
	Name             string `json:"name"`
	USN              int    `json:"usn"`
	LearnToday       [2]int `json:"lrnToday"`
	ReviewToday      [2]int `json:"revToday"`
	NewToday         [2]int `json:"newToday"`
	TimeToday        [2]int `json:"timeToday"`
	Collapsed        bool   `json:"collapsed"`
	BrowserCollapsed bool   `json:"browserCollapsed"`
	Description      string `json:"desc"`
	Dynamic          int    `json:"dyn"`
	Conf             int64  `json:"conf,omitempty"`
	ExtendNew        int    `json:"extendNew"`
	ExtendReview     int    `json:"extendRev"`
}

var deckKeys = []string{"id", "mod", "name", "usn", "lrnToday", "revToday", "newToday", "timeToday",
	"collapsed", "browserCollapsed", "desc", "dyn", "conf", "extendNew", "extendRev"}

// NewDeck creates a deck using the given options group, or the collection's
// default group when group is nil.
func (c *Collection) NewDeck(name string, group *DeckOptionsGroup) (*Deck, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: deck name must not be empty", common.ErrValidation)
	}
	d := &Deck{
		collection:       c,
		id:               nextID(),
		name:             name,
		mod:              nowSeconds(),
		usn:              newObjectUSN,
		collapsed:        false,
		browserCollapsed: false,
		optionsGroupID:   defaultOptionsGroupID,
		extendNew:        10,
		extendReview:     50,
	}
	if group != nil {
		d.optionsGroupID = group.id
	}
	return d, nil
}

func decodeDeck(c *Collection, raw []byte) (*Deck, error) {
	var in deckJSON
	extra, err := decodeObject(raw, &in, deckKeys...)
	if err != nil {
		return nil, err
	}
	return &Deck{
		collection:       c,
		id:               in.ID,
		name:             in.Name,
		mod:              in.Mod,
		usn:              in.USN,
		learnToday:       in.LearnToday,
		reviewToday:      in.ReviewToday,
		newToday:         in.NewToday,
		timeToday:        in.TimeToday,
		collapsed:        in.Collapsed,
		browserCollapsed: in.BrowserCollapsed,
		description:      in.Description,
		dynamic:          in.Dynamic,
		optionsGroupID:   in.Conf,
		extendNew:        in.ExtendNew,
		extendReview:     in.ExtendReview,
		extra:            extra,
	}, nil
}

func (d *Deck) encode() (json.RawMessage, error) {
	return encodeObject(deckJSON{
		ID:               d.id,
		Mod:              d.mod,
		Name:             d.name,
		USN:              d.usn,
		LearnToday:       d.learnToday,
		ReviewToday:      d.reviewToday,
		NewToday:         d.newToday,
		TimeToday:        d.timeToday,
		Collapsed:        d.collapsed,
		BrowserCollapsed: d.browserCollapsed,
		Description:      d.description,
		Dynamic:          d.dynamic,
		Conf:             d.optionsGroupID,
		ExtendNew:        d.extendNew,
		ExtendReview:     d.extendReview,
	}, d.extra)
}

// Save adds the deck to its collection's catalog if it is not there yet and
// writes the catalogs. The deck's options group must exist.
func (d *Deck) Save() error {
	if !d.collection.hasDeck(d) {
		if err := d.collection.AddDeck(d); err != nil {
			return err
		}
	}
	return d.collection.Save()
}

// SetOptionsGroup points the deck at group, or the default group when nil.
// Existence is checked on save.
func (d *Deck) SetOptionsGroup(group *DeckOptionsGroup) {
	if group == nil {
		d.optionsGroupID = defaultOptionsGroupID
		return
	}
	d.optionsGroupID = group.id
}

// Filtered reports whether the deck is a filtered deck. Filtered decks
// gather cards by search and have no options group.
func (d *Deck) Filtered() bool { return d.dynamic != 0 }

// Counters returns today's new, review and learning counters as stored.
func (d *Deck) Counters() (newToday, reviewToday, learnToday [2]int) {
	return d.newToday, d.reviewToday, d.learnToday
}

func (d *Deck) Collection() *Collection    { return d.collection }
func (d *Deck) ID() int64                  { return d.id }
func (d *Deck) Name() string               { return d.name }
func (d *Deck) SetName(name string)        { d.name = name }
func (d *Deck) Description() string        { return d.description }
func (d *Deck) SetDescription(s string)    { d.description = s }
func (d *Deck) OptionsGroupID() int64      { return d.optionsGroupID }
func (d *Deck) Collapsed() bool            { return d.collapsed }
func (d *Deck) SetCollapsed(b bool)        { d.collapsed = b }
func (d *Deck) BrowserCollapsed() bool     { return d.browserCollapsed }
func (d *Deck) SetBrowserCollapsed(b bool) { d.browserCollapsed = b }
