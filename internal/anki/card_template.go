package anki

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/conorfennell/ankipack/internal/common"
)

var placeholder = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Replacements the flashcard application supplies itself; they never name a field.
var builtinFields = map[string]bool{
	"FrontSide": true,
	"Tags":      true,
	"Type":      true,
	"Deck":      true,
	"Subdeck":   true,
	"Card":      true,
	"CardFlag":  true,
	"CardID":    true,
}

// fieldRef is one {{...}} reference in a template format.
type fieldRef struct {
	name  string
	cloze bool
}

func parseFieldRefs(format string) []fieldRef {
	var refs []fieldRef
	for _, m := range placeholder.FindAllStringSubmatch(format, -1) {
		inner := strings.TrimSpace(m[1])
		if inner == "" || strings.HasPrefix(inner, "!") {
			continue
		}
		// Section markers: {{#Field}}, {{^Field}}, {{/Field}}.
		if strings.ContainsAny(inner[:1], "#^/") {
			inner = strings.TrimSpace(inner[1:])
		}
		parts := strings.Split(inner, ":")
		ref := fieldRef{name: strings.TrimSpace(parts[len(parts)-1])}
		for _, filter := range parts[:len(parts)-1] {
			if strings.TrimSpace(filter) == "cloze" {
				ref.cloze = true
			}
		}
		if builtinFields[ref.name] {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// referencedFields returns the field names a format refers to, in order of
// first appearance.
func referencedFields(format string) []string {
	seen := map[string]bool{}
	var names []string
	for _, ref := range parseFieldRefs(format) {
		if !seen[ref.name] {
			seen[ref.name] = true
			names = append(names, ref.name)
		}
	}
	return names
}

// CardTemplate is one question/answer format pair of a note type.
type CardTemplate struct {
	noteType *NoteType

	name                  string
	ordinal               int
	questionFormat        string
	answerFormat          string
	browserQuestionFormat string
	browserAnswerFormat   string
	deckID                *int64
	browserFont           string
	browserFontSize       int
	extra                 object
}

type cardTemplateJSON struct {
	Name   string `json:"name"`
	Ord    int    `json:"ord"`
	QFmt   string `json:"qfmt"`
	AFmt   string `json:"afmt"`
	BQFmt  string `json:"bqfmt"`
	BAFmt  string `json:"bafmt"`
	DeckID *int64 `json:"did"`
	BFont  string `json:"bfont"`
	BSize  int    `json:"bsize"`
}

var cardTemplateKeys = []string{"name", "ord", "qfmt", "afmt", "bqfmt", "bafmt", "did", "bfont", "bsize"}

func decodeCardTemplate(nt *NoteType, raw []byte) (*CardTemplate, error) {
	var in cardTemplateJSON
	extra, err := decodeObject(raw, &in, cardTemplateKeys...)
	if err != nil {
		return nil, err
	}
	return &CardTemplate{
		noteType:              nt,
		name:                  in.Name,
		ordinal:               in.Ord,
		questionFormat:        in.QFmt,
		answerFormat:          in.AFmt,
		browserQuestionFormat: in.BQFmt,
		browserAnswerFormat:   in.BAFmt,
		deckID:                in.DeckID,
		browserFont:           in.BFont,
		browserFontSize:       in.BSize,
		extra:                 extra,
	}, nil
}

func (t *CardTemplate) encode() (json.RawMessage, error) {
	return encodeObject(cardTemplateJSON{
		Name:   t.name,
		Ord:    t.ordinal,
		QFmt:   t.questionFormat,
		AFmt:   t.answerFormat,
		BQFmt:  t.browserQuestionFormat,
		BAFmt:  t.browserAnswerFormat,
		DeckID: t.deckID,
		BFont:  t.browserFont,
		BSize:  t.browserFontSize,
	}, t.extra)
}

// checkFormat verifies every field a format refers to exists on the note
// type, and that cloze references only appear on cloze note types.
func (t *CardTemplate) checkFormat(format string) error {
	for _, ref := range parseFieldRefs(format) {
		if ref.cloze && !t.noteType.cloze {
			return fmt.Errorf("%w: cloze reference to %q in template %q of non-cloze note type %q",
				common.ErrValidation, ref.name, t.name, t.noteType.name)
		}
		if !t.noteType.HasField(ref.name) {
			return fmt.Errorf("%w: template %q refers to unknown field %q of note type %q",
				common.ErrValidation, t.name, ref.name, t.noteType.name)
		}
	}
	return nil
}

// SetQuestionFormat sets the question format after checking its field references.
func (t *CardTemplate) SetQuestionFormat(format string) error {
	if err := t.checkFormat(format); err != nil {
		return err
	}
	t.questionFormat = format
	return nil
}

// SetAnswerFormat sets the answer format after checking its field references.
func (t *CardTemplate) SetAnswerFormat(format string) error {
	if err := t.checkFormat(format); err != nil {
		return err
	}
	t.answerFormat = format
	return nil
}

// SetDeck overrides the deck cards generated from this template go to.
// A nil deck restores the note's deck.
func (t *CardTemplate) SetDeck(d *Deck) {
	if d == nil {
		t.deckID = nil
		return
	}
	id := d.id
	t.deckID = &id
}

// DeckID returns the overriding deck id, if one is set.
func (t *CardTemplate) DeckID() (int64, bool) {
	if t.deckID == nil {
		return 0, false
	}
	return *t.deckID, true
}

// NoteType returns the note type the template belongs to.
func (t *CardTemplate) NoteType() *NoteType { return t.noteType }

// Name returns the template name.
func (t *CardTemplate) Name() string { return t.name }

// SetName renames the template.
func (t *CardTemplate) SetName(name string) { t.name = name }

// Ordinal is the template's position in its note type and the ordinal of
// the cards it generates.
func (t *CardTemplate) Ordinal() int { return t.ordinal }

// QuestionFormat returns the front side format.
func (t *CardTemplate) QuestionFormat() string { return t.questionFormat }

// AnswerFormat returns the back side format.
func (t *CardTemplate) AnswerFormat() string { return t.answerFormat }

// BrowserQuestionFormat is the question shown in the browser, or "" for
// QuestionFormat.
func (t *CardTemplate) BrowserQuestionFormat() string { return t.browserQuestionFormat }

// SetBrowserQuestionFormat sets the browser question format.
func (t *CardTemplate) SetBrowserQuestionFormat(s string) { t.browserQuestionFormat = s }

// BrowserAnswerFormat is the answer shown in the browser, or "" for
// AnswerFormat.
func (t *CardTemplate) BrowserAnswerFormat() string { return t.browserAnswerFormat }

// SetBrowserAnswerFormat sets the browser answer format.
func (t *CardTemplate) SetBrowserAnswerFormat(s string) { t.browserAnswerFormat = s }

// BrowserFont returns the font used in the browser.
func (t *CardTemplate) BrowserFont() string { return t.browserFont }

// BrowserFontSize returns the font size used in the browser.
func (t *CardTemplate) BrowserFontSize() int { return t.browserFontSize }
