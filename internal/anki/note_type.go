package anki

import (
	"encoding/json"
	"fmt"

	"github.com/conorfennell/ankipack/internal/common"
)

const (
	defaultCSS = `.card {
    font-family: arial;
    font-size: 20px;
    text-align: center;
    color: black;
    background-color: white;
}
`
	clozeCSS = `.cloze {
    font-weight: bold;
    color: blue;
}
.nightMode .cloze {
    color: lightblue;
}
`
	defaultLatexPreamble = `\documentclass[12pt]{article}
\special{papersize=3in,5in}
\usepackage[utf8]{inputenc}
\usepackage{amssymb,amsmath}
\pagestyle{empty}
\setlength{\parindent}{0in}
\begin{document}
`
	defaultLatexPostamble = `\end{document}`
)

// NoteType is a note schema (a "model" in the col.models catalog): ordered
// fields, card templates and styling.
type NoteType struct {
	collection *Collection

	id        int64
	name      string
	cloze     bool
	mod       int64
	usn       int
	sortField int
	deckID    *int64
	fields    []*NoteField
	templates []*CardTemplate
	css       string
	latexPre  string
	latexPost string
	latexSVG  bool

	// req is passed through untouched for decoded note types. It is nil for
	// note types created here and computed when encoding.
	req   json.RawMessage
	extra object
}

type noteTypeJSON struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	Type      int               `json:"type"`
	Mod       int64             `json:"mod"`
	USN       int               `json:"usn"`
	SortField int               `json:"sortf"`
	DeckID    *int64            `json:"did"`
	Templates []json.RawMessage `json:"tmpls"`
	Fields    []json.RawMessage `json:"flds"`
	CSS       string            `json:"css"`
	LatexPre  string            `json:"latexPre"`
	LatexPost string            `json:"latexPost"`
	LatexSVG  bool              `json:"latexsvg"`
	Req       json.RawMessage   `json:"req,omitempty"`
}

var noteTypeKeys = []string{"id", "name", "type", "mod", "usn", "sortf", "did", "tmpls", "flds", "css", "latexPre", "latexPost", "latexsvg", "req"}

// NewNoteType creates a note type with no fields or templates. It joins the
// collection's catalog when saved or passed to AddNoteType.
func (c *Collection) NewNoteType(name string, cloze bool) (*NoteType, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: note type name must not be empty", common.ErrValidation)
	}
	css := defaultCSS
	if cloze {
		css += clozeCSS
	}
	return &NoteType{
		collection: c,
		id:         nextID(),
		name:       name,
		cloze:      cloze,
		mod:        nowSeconds(),
		usn:        newObjectUSN,
		css:        css,
		latexPre:   defaultLatexPreamble,
		latexPost:  defaultLatexPostamble,
		extra: object{
			"tags": json.RawMessage(`[]`),
			"vers": json.RawMessage(`[]`),
		},
	}, nil
}

func decodeNoteType(c *Collection, raw []byte) (*NoteType, error) {
	var in noteTypeJSON
	extra, err := decodeObject(raw, &in, noteTypeKeys...)
	if err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: note type %d has no name", common.ErrValidation, in.ID)
	}

	nt := &NoteType{
		collection: c,
		id:         in.ID,
		name:       in.Name,
		cloze:      in.Type == 1,
		mod:        in.Mod,
		usn:        in.USN,
		sortField:  in.SortField,
		deckID:     in.DeckID,
		css:        in.CSS,
		latexPre:   in.LatexPre,
		latexPost:  in.LatexPost,
		latexSVG:   in.LatexSVG,
		req:        in.Req,
		extra:      extra,
	}
	for i, rawField := range in.Fields {
		f, err := decodeNoteField(nt, rawField)
		if err != nil {
			return nil, err
		}
		if f.ordinal != i {
			return nil, fmt.Errorf("%w: note type %q field %q has ordinal %d at position %d", common.ErrValidation, nt.name, f.name, f.ordinal, i)
		}
		nt.fields = append(nt.fields, f)
	}
	for i, rawTmpl := range in.Templates {
		t, err := decodeCardTemplate(nt, rawTmpl)
		if err != nil {
			return nil, err
		}
		if t.ordinal != i {
			return nil, fmt.Errorf("%w: note type %q template %q has ordinal %d at position %d", common.ErrValidation, nt.name, t.name, t.ordinal, i)
		}
		nt.templates = append(nt.templates, t)
	}
	return nt, nil
}

func (nt *NoteType) encode() (json.RawMessage, error) {
	out := noteTypeJSON{
		ID:        nt.id,
		Name:      nt.name,
		Mod:       nt.mod,
		USN:       nt.usn,
		SortField: nt.sortField,
		DeckID:    nt.deckID,
		Templates: []json.RawMessage{},
		Fields:    []json.RawMessage{},
		CSS:       nt.css,
		LatexPre:  nt.latexPre,
		LatexPost: nt.latexPost,
		LatexSVG:  nt.latexSVG,
		Req:       nt.req,
	}
	if nt.cloze {
		out.Type = 1
	}
	if out.Req == nil {
		req, err := json.Marshal(nt.requirements())
		if err != nil {
			return nil, err
		}
		out.Req = req
	}
	for _, f := range nt.fields {
		raw, err := f.encode()
		if err != nil {
			return nil, err
		}
		out.Fields = append(out.Fields, raw)
	}
	for _, t := range nt.templates {
		raw, err := t.encode()
		if err != nil {
			return nil, err
		}
		out.Templates = append(out.Templates, raw)
	}
	return encodeObject(out, nt.extra)
}

// requirements lists, per template, the fields its question references.
// A card is generated when any of them is non-empty. Cloze note types
// generate cards from the cloze markers instead and carry no rules.
func (nt *NoteType) requirements() []any {
	rules := []any{}
	if nt.cloze {
		return rules
	}
	for _, t := range nt.templates {
		ords := []int{}
		for _, name := range referencedFields(t.questionFormat) {
			if f := nt.field(name); f != nil {
				ords = append(ords, f.ordinal)
			}
		}
		rules = append(rules, []any{t.ordinal, "any", ords})
	}
	return rules
}

// NewNoteField appends a field named name. Duplicate names are not checked.
func (nt *NoteType) NewNoteField(name string) *NoteField {
	f := &NoteField{
		noteType: nt,
		name:     name,
		ordinal:  len(nt.fields),
		font:     "Arial",
		size:     20,
	}
	nt.fields = append(nt.fields, f)
	return f
}

// NewCardTemplate appends a template named name with empty formats.
// Duplicate names are not checked.
func (nt *NoteType) NewCardTemplate(name string) *CardTemplate {
	t := &CardTemplate{
		noteType: nt,
		name:     name,
		ordinal:  len(nt.templates),
	}
	nt.templates = append(nt.templates, t)
	return t
}

// Save adds the note type to its collection's catalog, replacing any note
// type with the same id, and writes the catalogs to the database.
func (nt *NoteType) Save() error {
	if err := nt.collection.AddNoteType(nt); err != nil {
		return err
	}
	return nt.collection.Save()
}

func (nt *NoteType) field(name string) *NoteField {
	for _, f := range nt.fields {
		if f.name == name {
			return f
		}
	}
	return nil
}

// HasField reports whether the note type declares a field named name.
func (nt *NoteType) HasField(name string) bool {
	return nt.field(name) != nil
}

// FieldNames returns the field names in ordinal order.
func (nt *NoteType) FieldNames() []string {
	names := make([]string, len(nt.fields))
	for i, f := range nt.fields {
		names[i] = f.name
	}
	return names
}

// SortFieldName returns the name of the field used for sorting and checksums,
// or "" when the note type has no fields.
func (nt *NoteType) SortFieldName() string {
	if nt.sortField < 0 || nt.sortField >= len(nt.fields) {
		return ""
	}
	return nt.fields[nt.sortField].name
}

// SetSortField makes the named field the sort field.
func (nt *NoteType) SetSortField(name string) error {
	f := nt.field(name)
	if f == nil {
		return fmt.Errorf("%w: note type %q has no field %q", common.ErrNotFound, nt.name, name)
	}
	nt.sortField = f.ordinal
	return nil
}

// SetDeck sets the deck new cards of this note type go to by default.
// A nil deck clears it.
func (nt *NoteType) SetDeck(d *Deck) {
	if d == nil {
		nt.deckID = nil
		return
	}
	id := d.id
	nt.deckID = &id
}

// DeckID returns the default deck id, if one is set.
func (nt *NoteType) DeckID() (int64, bool) {
	if nt.deckID == nil {
		return 0, false
	}
	return *nt.deckID, true
}

// Collection returns the collection the note type belongs to.
func (nt *NoteType) Collection() *Collection { return nt.collection }

// ID returns the note type id.
func (nt *NoteType) ID() int64 { return nt.id }

// Name returns the note type name.
func (nt *NoteType) Name() string { return nt.name }

// SetName renames the note type. Names must be unique on save.
func (nt *NoteType) SetName(name string) { nt.name = name }

// IsCloze reports whether the note type generates cloze cards.
func (nt *NoteType) IsCloze() bool { return nt.cloze }

// SetCloze sets the note type kind.
func (nt *NoteType) SetCloze(cloze bool) { nt.cloze = cloze }

// CSS returns the styling shared by the note type's templates.
func (nt *NoteType) CSS() string { return nt.css }

// SetCSS sets the shared styling.
func (nt *NoteType) SetCSS(css string) { nt.css = css }

// LatexPreamble is prepended to LaTeX in fields.
func (nt *NoteType) LatexPreamble() string { return nt.latexPre }

// SetLatexPreamble sets the LaTeX preamble.
func (nt *NoteType) SetLatexPreamble(s string) { nt.latexPre = s }

// LatexPostamble is appended to LaTeX in fields.
func (nt *NoteType) LatexPostamble() string { return nt.latexPost }

// SetLatexPostamble sets the LaTeX postamble.
func (nt *NoteType) SetLatexPostamble(s string) { nt.latexPost = s }

// LatexSVG reports whether LaTeX renders to SVG instead of PNG.
func (nt *NoteType) LatexSVG() bool { return nt.latexSVG }

// SetLatexSVG sets LaTeX SVG rendering.
func (nt *NoteType) SetLatexSVG(b bool) { nt.latexSVG = b }

// Fields returns the note type's fields in ordinal order.
func (nt *NoteType) Fields() []*NoteField {
	return append([]*NoteField(nil), nt.fields...)
}

// Templates returns the note type's card templates in ordinal order.
func (nt *NoteType) Templates() []*CardTemplate {
	return append([]*CardTemplate(nil), nt.templates...)
}

// NoteField is one field of a note type.
type NoteField struct {
	noteType *NoteType
	name     string
	ordinal  int
	sticky   bool
	rtl      bool
	font     string
	size     int
	extra    object
}

type noteFieldJSON struct {
	Name   string `json:"name"`
	Ord    int    `json:"ord"`
	Sticky bool   `json:"sticky"`
	RTL    bool   `json:"rtl"`
	Font   string `json:"font"`
	Size   int    `json:"size"`
}

var noteFieldKeys = []string{"name", "ord", "sticky", "rtl", "font", "size"}

func decodeNoteField(nt *NoteType, raw []byte) (*NoteField, error) {
	var in noteFieldJSON
	extra, err := decodeObject(raw, &in, noteFieldKeys...)
	if err != nil {
		return nil, err
	}
	return &NoteField{
		noteType: nt,
		name:     in.Name,
		ordinal:  in.Ord,
		sticky:   in.Sticky,
		rtl:      in.RTL,
		font:     in.Font,
		size:     in.Size,
		extra:    extra,
	}, nil
}

func (f *NoteField) encode() (json.RawMessage, error) {
	extra := f.extra
	if extra == nil {
		extra = object{"description": json.RawMessage(`""`)}
	}
	return encodeObject(noteFieldJSON{
		Name:   f.name,
		Ord:    f.ordinal,
		Sticky: f.sticky,
		RTL:    f.rtl,
		Font:   f.font,
		Size:   f.size,
	}, extra)
}

func (f *NoteField) Name() string          { return f.name }
func (f *NoteField) Ordinal() int          { return f.ordinal }
func (f *NoteField) Sticky() bool          { return f.sticky }
func (f *NoteField) SetSticky(b bool)      { f.sticky = b }
func (f *NoteField) RightToLeft() bool     { return f.rtl }
func (f *NoteField) SetRightToLeft(b bool) { f.rtl = b }
func (f *NoteField) Font() string          { return f.font }
func (f *NoteField) SetFont(font string)   { f.font = font }
func (f *NoteField) FontSize() int         { return f.size }
func (f *NoteField) SetFontSize(size int)  { f.size = size }
