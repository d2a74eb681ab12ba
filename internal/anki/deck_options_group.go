package anki

import (
	"encoding/json"
	"fmt"

	"github.com/conorfennell/ankipack/internal/common"
)

const (
	defaultOptionsGroupID int64 = 1
	defaultDeckID         int64 = 1
)

// NewCardOptions configures how new cards are introduced.
type NewCardOptions struct {
	Bury          bool      `json:"bury"`
	Delays        []float64 `json:"delays"` // learning steps in minutes
	InitialFactor int       `json:"initialFactor"`
	Intervals     []int     `json:"ints"` // graduating, easy, unused
	Order         int       `json:"order"`
	PerDay        int       `json:"perDay"`

	keys nestedKeys
}

// ReviewOptions configures reviews of graduated cards.
type ReviewOptions struct {
	Bury           bool    `json:"bury"`
	EasyBonus      float64 `json:"ease4"`
	IntervalFactor float64 `json:"ivlFct"`
	MaxInterval    int     `json:"maxIvl"`
	PerDay         int     `json:"perDay"`
	HardFactor     float64 `json:"hardFactor"`

	keys nestedKeys
}

// LapseOptions configures cards that were forgotten.
type LapseOptions struct {
	Delays      []float64 `json:"delays"`
	LeechAction int       `json:"leechAction"`
	LeechFails  int       `json:"leechFails"`
	MinInterval int       `json:"minInt"`
	Multiplier  float64   `json:"mult"`

	keys nestedKeys
}

var (
	newCardOptionsKeys = []string{"bury", "delays", "initialFactor", "ints", "order", "perDay"}
	reviewOptionsKeys  = []string{"bury", "ease4", "ivlFct", "maxIvl", "perDay", "hardFactor"}
	lapseOptionsKeys   = []string{"delays", "leechAction", "leechFails", "minInt", "mult"}
)

func (o *NewCardOptions) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	type plain NewCardOptions
	keys, err := decodeNested(b, (*plain)(o), newCardOptionsKeys...)
	o.keys = keys
	return err
}

func (o NewCardOptions) MarshalJSON() ([]byte, error) {
	type plain NewCardOptions
	return encodeNested(plain(o), o.keys)
}

func (o *ReviewOptions) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	type plain ReviewOptions
	keys, err := decodeNested(b, (*plain)(o), reviewOptionsKeys...)
	o.keys = keys
	return err
}

func (o ReviewOptions) MarshalJSON() ([]byte, error) {
	type plain ReviewOptions
	return encodeNested(plain(o), o.keys)
}

func (o *LapseOptions) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	type plain LapseOptions
	keys, err := decodeNested(b, (*plain)(o), lapseOptionsKeys...)
	o.keys = keys
	return err
}

func (o LapseOptions) MarshalJSON() ([]byte, error) {
	type plain LapseOptions
	return encodeNested(plain(o), o.keys)
}

// DeckOptionsGroup is a scheduling-parameter bundle from the col.dconf catalog.
type DeckOptionsGroup struct {
	collection *Collection

	id       int64
	name     string
	mod      int64
	usn      int
	maxTaken int
	autoplay bool
	timer    int
	replayQ  bool
	dynamic  bool
	NewCards NewCardOptions
	Reviews  ReviewOptions
	Lapses   LapseOptions
	extra    object
}

type deckOptionsGroupJSON struct {
	ID       int64          `json:"id"`
	Mod      int64          `json:"mod"`
	Name     string         `json:"name"`
	USN      int            `json:"usn"`
	MaxTaken int            `json:"maxTaken"`
	Autoplay bool           `json:"autoplay"`
	Timer    int            `json:"timer"`
	ReplayQ  bool           `json:"replayq"`
	New      NewCardOptions `json:"new"`
	Rev      ReviewOptions  `json:"rev"`
	Lapse    LapseOptions   `json:"lapse"`
	Dynamic  bool           `json:"dyn"`
}

var deckOptionsGroupKeys = []string{"id", "mod", "name", "usn", "maxTaken", "autoplay", "timer", "replayq", "new", "rev", "lapse", "dyn"}

// NewDeckOptionsGroup creates an options group with the application's
// stock scheduling parameters.
func (c *Collection) NewDeckOptionsGroup(name string) (*DeckOptionsGroup, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: deck options group name must not be empty", common.ErrValidation)
	}
	return &DeckOptionsGroup{
		collection: c,
		id:         nextID(),
		name:       name,
		mod:        nowSeconds(),
		usn:        newObjectUSN,
		maxTaken:   60,
		autoplay:   true,
		replayQ:    true,
		NewCards: NewCardOptions{
			Delays:        []float64{1, 10},
			InitialFactor: 2500,
			Intervals:     []int{1, 4, 0},
			Order:         1,
			PerDay:        20,
		},
		Reviews: ReviewOptions{
			EasyBonus:      1.3,
			IntervalFactor: 1,
			MaxInterval:    36500,
			PerDay:         200,
			HardFactor:     1.2,
		},
		Lapses: LapseOptions{
			Delays:      []float64{10},
			LeechAction: 1,
			LeechFails:  8,
			MinInterval: 1,
		},
		extra: object{
			"newMix":               json.RawMessage(`0`),
			"newPerDayMinimum":     json.RawMessage(`0`),
			"interdayLearningMix":  json.RawMessage(`0`),
			"reviewOrder":          json.RawMessage(`0`),
			"newSortOrder":         json.RawMessage(`0`),
			"newGatherPriority":    json.RawMessage(`0`),
			"buryInterdayLearning": json.RawMessage(`false`),
		},
	}, nil
}

func decodeDeckOptionsGroup(c *Collection, raw []byte) (*DeckOptionsGroup, error) {
	var in deckOptionsGroupJSON
	extra, err := decodeObject(raw, &in, deckOptionsGroupKeys...)
	if err != nil {
		return nil, err
	}
	return &DeckOptionsGroup{
		collection: c,
		id:         in.ID,
		name:       in.Name,
		mod:        in.Mod,
		usn:        in.USN,
		maxTaken:   in.MaxTaken,
		autoplay:   in.Autoplay,
		timer:      in.Timer,
		replayQ:    in.ReplayQ,
		dynamic:    in.Dynamic,
		NewCards:   in.New,
		Reviews:    in.Rev,
		Lapses:     in.Lapse,
		extra:      extra,
	}, nil
}

func (g *DeckOptionsGroup) encode() (json.RawMessage, error) {
	return encodeObject(deckOptionsGroupJSON{
		ID:       g.id,
		Mod:      g.mod,
		Name:     g.name,
		USN:      g.usn,
		MaxTaken: g.maxTaken,
		Autoplay: g.autoplay,
		Timer:    g.timer,
		ReplayQ:  g.replayQ,
		New:      g.NewCards,
		Rev:      g.Reviews,
		Lapse:    g.Lapses,
		Dynamic:  g.dynamic,
	}, g.extra)
}

// Save adds the group to its collection's catalog if it is not there yet and
// writes the catalogs.
func (g *DeckOptionsGroup) Save() error {
	if !g.collection.hasDeckOptionsGroup(g) {
		if err := g.collection.AddDeckOptionsGroup(g); err != nil {
			return err
		}
	}
	return g.collection.Save()
}

func (g *DeckOptionsGroup) Collection() *Collection { return g.collection }
func (g *DeckOptionsGroup) ID() int64               { return g.id }
func (g *DeckOptionsGroup) Name() string            { return g.name }
func (g *DeckOptionsGroup) SetName(name string)     { g.name = name }
func (g *DeckOptionsGroup) Autoplay() bool          { return g.autoplay }
func (g *DeckOptionsGroup) SetAutoplay(b bool)      { g.autoplay = b }
