package anki

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/conorfennell/ankipack/internal/common"
	"github.com/conorfennell/ankipack/internal/storage"
	"github.com/google/uuid"
)

// ClozePolicy decides how many cards a note of a cloze note type owns.
type ClozePolicy int

const (
	// ClozePerTemplate generates one card per template, like any other note type.
	ClozePerTemplate ClozePolicy = iota
	// ClozePerReference generates one card per distinct {{cN::...}} number
	// found in the note's fields when the note is saved.
	ClozePerReference
)

// CollectionRecord is the single row of the col table as stored.
type CollectionRecord struct {
	ID             int64
	Created        int64 // seconds
	Modified       int64 // milliseconds
	SchemaModified int64 // milliseconds
	Version        int
	Dirty          int
	USN            int
	LastSync       int64
	Conf           string
	Models         string
	Decks          string
	DeckOptions    string
	Tags           string
}

// ReadCollectionRecord reads the col row from db.
func ReadCollectionRecord(db *storage.DB) (CollectionRecord, error) {
	var r CollectionRecord
	found, err := db.QueryRow(`
		SELECT id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags
		FROM col LIMIT 1
	`, nil,
		&r.ID, &r.Created, &r.Modified, &r.SchemaModified, &r.Version, &r.Dirty, &r.USN, &r.LastSync,
		&r.Conf, &r.Models, &r.Decks, &r.DeckOptions, &r.Tags,
	)
	if err != nil {
		return r, fmt.Errorf("failed to read collection record: %w", err)
	}
	if !found {
		return r, fmt.Errorf("%w: database %s has no collection record", common.ErrStorage, db.Path())
	}
	return r, nil
}

// Collection is the package's catalog store: the col row's scalar values
// plus live note types, decks and deck options groups decoded from its JSON
// columns. After construction these objects are the only source of truth;
// the row itself is not kept.
type Collection struct {
	db      *storage.DB
	session uuid.UUID

	id             int64
	created        int64
	modified       int64
	schemaModified int64
	version        int
	dirty          int
	usn            int
	lastSync       int64
	conf           json.RawMessage
	tags           json.RawMessage

	noteTypes         []*NoteType
	decks             []*Deck
	deckOptionsGroups []*DeckOptionsGroup

	clozePolicy ClozePolicy
}

// NewCollection loads the collection stored in db.
func NewCollection(db *storage.DB) (*Collection, error) {
	record, err := ReadCollectionRecord(db)
	if err != nil {
		return nil, err
	}
	return NewCollectionFromRecord(db, record)
}

// NewCollectionFromRecord builds a collection bound to db from a col row,
// which may come from another package.
func NewCollectionFromRecord(db *storage.DB, record CollectionRecord) (*Collection, error) {
	c := &Collection{
		db:             db,
		session:        uuid.New(),
		id:             record.ID,
		created:        record.Created,
		modified:       record.Modified,
		schemaModified: record.SchemaModified,
		version:        record.Version,
		dirty:          record.Dirty,
		usn:            record.USN,
		lastSync:       record.LastSync,
	}
	if !json.Valid([]byte(record.Conf)) {
		return nil, fmt.Errorf("%w: collection conf is not valid JSON", common.ErrValidation)
	}
	if !json.Valid([]byte(record.Tags)) {
		return nil, fmt.Errorf("%w: collection tags are not valid JSON", common.ErrValidation)
	}
	c.conf = json.RawMessage(record.Conf)
	c.tags = json.RawMessage(record.Tags)

	models, err := decodeCatalog(record.Models)
	if err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}
	for _, key := range sortedKeys(models) {
		nt, err := decodeNoteType(c, models[key])
		if err != nil {
			return nil, err
		}
		if err := checkCatalogKey(key, nt.id); err != nil {
			return nil, err
		}
		c.noteTypes = append(c.noteTypes, nt)
	}

	dconf, err := decodeCatalog(record.DeckOptions)
	if err != nil {
		return nil, fmt.Errorf("dconf: %w", err)
	}
	for _, key := range sortedKeys(dconf) {
		g, err := decodeDeckOptionsGroup(c, dconf[key])
		if err != nil {
			return nil, err
		}
		if err := checkCatalogKey(key, g.id); err != nil {
			return nil, err
		}
		c.deckOptionsGroups = append(c.deckOptionsGroups, g)
	}

	decks, err := decodeCatalog(record.Decks)
	if err != nil {
		return nil, fmt.Errorf("decks: %w", err)
	}
	for _, key := range sortedKeys(decks) {
		d, err := decodeDeck(c, decks[key])
		if err != nil {
			return nil, err
		}
		if err := checkCatalogKey(key, d.id); err != nil {
			return nil, err
		}
		c.decks = append(c.decks, d)
	}

	return c, nil
}

// sortedKeys orders catalog keys numerically so decoding is deterministic.
func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// AddNoteType adds nt to the catalog. A note type with the same id is
// replaced; a different note type with the same name is rejected.
func (c *Collection) AddNoteType(nt *NoteType) error {
	if nt == nil {
		return fmt.Errorf("%w: expected a note type", common.ErrTypeMismatch)
	}
	if nt.collection != c {
		return fmt.Errorf("%w: note type %q belongs to another collection", common.ErrValidation, nt.name)
	}
	for _, existing := range c.noteTypes {
		if existing.id != nt.id && existing.name == nt.name {
			return fmt.Errorf("%w: a note type named %q already exists", common.ErrValidation, nt.name)
		}
	}
	for i, existing := range c.noteTypes {
		if existing.id == nt.id {
			c.noteTypes[i] = nt
			return nil
		}
	}
	c.noteTypes = append(c.noteTypes, nt)
	return nil
}

// AddDeck appends d to the catalog. Decks are never replaced: adding a deck
// whose id is already present is an error.
func (c *Collection) AddDeck(d *Deck) error {
	if d == nil {
		return fmt.Errorf("%w: expected a deck", common.ErrTypeMismatch)
	}
	if d.collection != c {
		return fmt.Errorf("%w: deck %q belongs to another collection", common.ErrValidation, d.name)
	}
	for _, existing := range c.decks {
		if existing.id == d.id {
			return fmt.Errorf("%w: deck id %d already in catalog", common.ErrValidation, d.id)
		}
	}
	c.decks = append(c.decks, d)
	return nil
}

// AddDeckOptionsGroup appends g to the catalog. Like decks, options groups
// are never replaced.
func (c *Collection) AddDeckOptionsGroup(g *DeckOptionsGroup) error {
	if g == nil {
		return fmt.Errorf("%w: expected a deck options group", common.ErrTypeMismatch)
	}
	if g.collection != c {
		return fmt.Errorf("%w: deck options group %q belongs to another collection", common.ErrValidation, g.name)
	}
	for _, existing := range c.deckOptionsGroups {
		if existing.id == g.id {
			return fmt.Errorf("%w: deck options group id %d already in catalog", common.ErrValidation, g.id)
		}
	}
	c.deckOptionsGroups = append(c.deckOptionsGroups, g)
	return nil
}

func (c *Collection) hasDeck(d *Deck) bool {
	for _, existing := range c.decks {
		if existing == d {
			return true
		}
	}
	return false
}

func (c *Collection) hasDeckOptionsGroup(g *DeckOptionsGroup) bool {
	for _, existing := range c.deckOptionsGroups {
		if existing == g {
			return true
		}
	}
	return false
}

// Selector picks a catalog entry by exactly one of name or id. Build one
// with ByName or ByID; the zero Selector selects nothing.
type Selector struct {
	name    string
	id      int64
	hasName bool
	hasID   bool
}

// ByName selects by name.
func ByName(name string) Selector { return Selector{name: name, hasName: name != ""} }

// ByID selects by id. Any id, including 0, is a valid selector.
func ByID(id int64) Selector { return Selector{id: id, hasID: true} }

func (s Selector) validate() error {
	if s.hasName == s.hasID {
		return fmt.Errorf("%w: pass either a name or an id", common.ErrValidation)
	}
	return nil
}

// FindNoteTypeBy returns the first note type matching sel, or nil.
func (c *Collection) FindNoteTypeBy(sel Selector) (*NoteType, error) {
	if err := sel.validate(); err != nil {
		return nil, err
	}
	for _, nt := range c.noteTypes {
		if (sel.hasName && nt.name == sel.name) || (sel.hasID && nt.id == sel.id) {
			return nt, nil
		}
	}
	return nil, nil
}

// FindDeckBy returns the first deck matching sel, or nil.
func (c *Collection) FindDeckBy(sel Selector) (*Deck, error) {
	if err := sel.validate(); err != nil {
		return nil, err
	}
	for _, d := range c.decks {
		if (sel.hasName && d.name == sel.name) || (sel.hasID && d.id == sel.id) {
			return d, nil
		}
	}
	return nil, nil
}

// FindDeckOptionsGroupBy returns the options group with the given id, or nil.
func (c *Collection) FindDeckOptionsGroupBy(id int64) *DeckOptionsGroup {
	for _, g := range c.deckOptionsGroups {
		if g.id == id {
			return g
		}
	}
	return nil
}

func (c *Collection) deckByID(id int64) *Deck {
	for _, d := range c.decks {
		if d.id == id {
			return d
		}
	}
	return nil
}

// Save re-encodes the catalogs from the live objects and writes them to the
// col row. Every deck other than a filtered deck must reference an existing
// options group.
func (c *Collection) Save() error {
	for _, d := range c.decks {
		if d.Filtered() {
			continue
		}
		if c.FindDeckOptionsGroupBy(d.optionsGroupID) == nil {
			return fmt.Errorf("%w: deck %q references missing options group %d", common.ErrValidation, d.name, d.optionsGroupID)
		}
	}

	models, err := encodeCatalog(c.noteTypes, (*NoteType).encode, func(nt *NoteType) int64 { return nt.id })
	if err != nil {
		return fmt.Errorf("failed to encode note types: %w", err)
	}
	decks, err := encodeCatalog(c.decks, (*Deck).encode, func(d *Deck) int64 { return d.id })
	if err != nil {
		return fmt.Errorf("failed to encode decks: %w", err)
	}
	dconf, err := encodeCatalog(c.deckOptionsGroups, (*DeckOptionsGroup).encode, func(g *DeckOptionsGroup) int64 { return g.id })
	if err != nil {
		return fmt.Errorf("failed to encode deck options groups: %w", err)
	}

	mod := nowMillis()
	_, err = c.db.Exec(`
		UPDATE col SET mod = ?, conf = ?, models = ?, decks = ?, dconf = ?, tags = ?
		WHERE id = ?
	`, mod, string(c.conf), models, decks, dconf, string(c.tags), c.id)
	if err != nil {
		return fmt.Errorf("failed to save collection: %w", err)
	}
	c.modified = mod
	return nil
}

func encodeCatalog[T any](items []T, encode func(T) (json.RawMessage, error), id func(T) int64) (string, error) {
	catalog := make(map[string]json.RawMessage, len(items))
	for _, item := range items {
		raw, err := encode(item)
		if err != nil {
			return "", err
		}
		catalog[fmt.Sprint(id(item))] = raw
	}
	out, err := json.Marshal(catalog)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// SetClozePolicy changes how cards are generated for cloze notes saved
// from now on.
func (c *Collection) SetClozePolicy(p ClozePolicy) {
	c.clozePolicy = p
}

// ClozePolicy returns the current cloze card generation policy.
func (c *Collection) ClozePolicy() ClozePolicy {
	return c.clozePolicy
}

// SessionID identifies this collection instance. Two collections loaded from
// identical rows still have different session ids.
func (c *Collection) SessionID() uuid.UUID {
	return c.session
}

// DB returns the database the collection is stored in.
func (c *Collection) DB() *storage.DB { return c.db }

// ID returns the col row id.
func (c *Collection) ID() int64 { return c.id }

// CreatedAt is the collection creation time in seconds.
func (c *Collection) CreatedAt() int64 { return c.created }

// LastModified is the last modification time in milliseconds.
func (c *Collection) LastModified() int64 { return c.modified }

// SchemaModified is the last schema change in milliseconds. A change
// forces a full sync.
func (c *Collection) SchemaModified() int64 { return c.schemaModified }

// Version is the collection schema version.
func (c *Collection) Version() int { return c.version }

// USN returns the collection's update sequence number.
func (c *Collection) USN() int { return c.usn }

// Config returns the raw col.conf object.
func (c *Collection) Config() json.RawMessage { return c.conf }

// Tags returns the raw col.tags object.
func (c *Collection) Tags() json.RawMessage { return c.tags }

// NoteTypes returns the note type catalog.
func (c *Collection) NoteTypes() []*NoteType {
	return append([]*NoteType(nil), c.noteTypes...)
}

// Decks returns the deck catalog.
func (c *Collection) Decks() []*Deck {
	return append([]*Deck(nil), c.decks...)
}

// DeckOptionsGroups returns the deck options group catalog.
func (c *Collection) DeckOptionsGroups() []*DeckOptionsGroup {
	return append([]*DeckOptionsGroup(nil), c.deckOptionsGroups...)
}
