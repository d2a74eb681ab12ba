package anki

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/conorfennell/ankipack/internal/storage"
)

const collectionVersion = 11

const defaultCollectionConf = `{"activeDecks":[1],"addToCur":true,"collapseTime":1200,"creationOffset":0,` +
	`"curDeck":1,"dayLearnFirst":false,"dueCounts":true,"estTimes":true,"newSpread":0,"nextPos":1,` +
	`"schedVer":2,"sortBackwards":false,"sortType":"noteFld","timeLim":0}`

const answerSeparator = "{{FrontSide}}\n\n<hr id=answer>\n\n"

type templateSeed struct {
	name, question, answer string
}

type noteTypeSeed struct {
	name      string
	cloze     bool
	fields    []string
	templates []templateSeed
	req       string
}

var defaultNoteTypes = []noteTypeSeed{
	{
		name:   "Basic",
		fields: []string{"Front", "Back"},
		templates: []templateSeed{
			{"Card 1", "{{Front}}", answerSeparator + "{{Back}}"},
		},
	},
	{
		name:   "Basic (and reversed card)",
		fields: []string{"Front", "Back"},
		templates: []templateSeed{
			{"Card 1", "{{Front}}", answerSeparator + "{{Back}}"},
			{"Card 2", "{{Back}}", answerSeparator + "{{Front}}"},
		},
	},
	{
		name:   "Basic (optional reversed card)",
		fields: []string{"Front", "Back", "Add Reverse"},
		templates: []templateSeed{
			{"Card 1", "{{Front}}", answerSeparator + "{{Back}}"},
			{"Card 2", "{{#Add Reverse}}{{Back}}{{/Add Reverse}}", answerSeparator + "{{Front}}"},
		},
		req: `[[0,"any",[0]],[1,"all",[1,2]]]`,
	},
	{
		name:   "Basic (type in the answer)",
		fields: []string{"Front", "Back"},
		templates: []templateSeed{
			{"Card 1", "{{Front}}\n\n{{type:Back}}", "{{Front}}\n\n<hr id=answer>\n\n{{type:Back}}"},
		},
	},
	{
		name:   "Cloze",
		cloze:  true,
		fields: []string{"Text", "Back Extra"},
		templates: []templateSeed{
			{"Cloze", "{{cloze:Text}}", "{{cloze:Text}}<br>\n{{Back Extra}}"},
		},
	},
}

// NewCollectionSeed returns the statement inserting the col row of a fresh
// collection: the stock note types, a "Default" deck and a "Default" options
// group. The collection has id 1 and has never been modified.
func NewCollectionSeed(created time.Time) (storage.Statement, error) {
	c := &Collection{}

	for _, s := range defaultNoteTypes {
		nt, err := c.NewNoteType(s.name, s.cloze)
		if err != nil {
			return storage.Statement{}, err
		}
		nt.mod, nt.usn = 0, 0
		for _, name := range s.fields {
			nt.NewNoteField(name)
		}
		for _, ts := range s.templates {
			t := nt.NewCardTemplate(ts.name)
			if err := t.SetQuestionFormat(ts.question); err != nil {
				return storage.Statement{}, err
			}
			if err := t.SetAnswerFormat(ts.answer); err != nil {
				return storage.Statement{}, err
			}
		}
		if s.req != "" {
			nt.req = json.RawMessage(s.req)
		}
		c.noteTypes = append(c.noteTypes, nt)
	}

	group, err := c.NewDeckOptionsGroup("Default")
	if err != nil {
		return storage.Statement{}, err
	}
	group.id, group.mod, group.usn = defaultOptionsGroupID, 0, 0
	c.deckOptionsGroups = append(c.deckOptionsGroups, group)

	deck, err := c.NewDeck("Default", group)
	if err != nil {
		return storage.Statement{}, err
	}
	deck.id, deck.mod, deck.usn = defaultDeckID, 0, 0
	deck.collapsed = true
	c.decks = append(c.decks, deck)

	models, err := encodeCatalog(c.noteTypes, (*NoteType).encode, func(nt *NoteType) int64 { return nt.id })
	if err != nil {
		return storage.Statement{}, fmt.Errorf("failed to encode default note types: %w", err)
	}
	decks, err := encodeCatalog(c.decks, (*Deck).encode, func(d *Deck) int64 { return d.id })
	if err != nil {
		return storage.Statement{}, fmt.Errorf("failed to encode default deck: %w", err)
	}
	dconf, err := encodeCatalog(c.deckOptionsGroups, (*DeckOptionsGroup).encode, func(g *DeckOptionsGroup) int64 { return g.id })
	if err != nil {
		return storage.Statement{}, fmt.Errorf("failed to encode default options group: %w", err)
	}

	return storage.Statement{
		Query: `INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
			VALUES (1, ?, 0, ?, ?, 0, 0, 0, ?, ?, ?, ?, '{}')`,
		Args: []any{created.Unix(), created.UnixMilli(), collectionVersion, defaultCollectionConf, models, decks, dconf},
	}, nil
}
