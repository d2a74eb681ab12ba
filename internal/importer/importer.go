package importer

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/ankipack/internal/anki"
	"github.com/conorfennell/ankipack/internal/checksum"
	"github.com/conorfennell/ankipack/internal/domain"
	"github.com/conorfennell/ankipack/internal/gitsource"
	"github.com/conorfennell/ankipack/internal/parser"
)

// NoteTypeName is the note type imported cards are stored as.
const NoteTypeName = "Knol Q/A"

const (
	questionField = "Question"
	answerField   = "Answer"
	contextField  = "Context"

	answerFormat = "{{FrontSide}}\n\n<hr id=answer>\n\n{{Answer}}" +
		"{{#Context}}<br><br><small>{{Context}}</small>{{/Context}}"
)

// Importer turns markdown Q:/A:/C: sources into notes of a collection.
type Importer struct {
	Collection *anki.Collection
	// DeckName is the deck new notes go to. It is created when missing.
	DeckName string
	// CacheDir holds checkouts of git sources.
	CacheDir string
	Logger   *slog.Logger
}

// Result summarizes one import.
type Result struct {
	Parsed  int
	Added   int
	Skipped int
	Errors  []error
}

func (im *Importer) logger() *slog.Logger {
	if im.Logger != nil {
		return im.Logger
	}
	return slog.Default()
}

// Import reads every .md file under source, a directory or a git URL, and
// adds a note for each card not already in the collection. A card's guid is
// derived from its content, so importing the same source again adds nothing.
// Per-card failures are collected in the result; the returned error is for
// failures that stop the whole import.
func (im *Importer) Import(source string) (Result, error) {
	root, err := im.resolve(source)
	if err != nil {
		return Result{}, err
	}

	noteType, err := EnsureNoteType(im.Collection)
	if err != nil {
		return Result{}, err
	}
	deck, err := im.ensureDeck()
	if err != nil {
		return Result{}, err
	}

	var res Result
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		cards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			res.Errors = append(res.Errors, parseErr)
			return nil
		}
		for _, card := range cards {
			res.Parsed++
			added, err := im.importCard(noteType, deck, card)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("importing card from %s: %w", path, err))
				continue
			}
			if added {
				res.Added++
			} else {
				res.Skipped++
			}
		}
		return nil
	})
	if walkErr != nil {
		return res, fmt.Errorf("error walking directory %s: %w", root, walkErr)
	}

	im.logger().Info("import complete",
		"source", source,
		"parsed_cards", res.Parsed,
		"added", res.Added,
		"skipped", res.Skipped,
		"errors", len(res.Errors),
	)
	return res, nil
}

// resolve returns the local directory holding source, syncing git sources
// into the cache directory first.
func (im *Importer) resolve(source string) (string, error) {
	if !gitsource.IsRemote(source) {
		info, err := os.Stat(source)
		if err != nil {
			return "", fmt.Errorf("source %s: %w", source, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("source %s is not a directory", source)
		}
		return source, nil
	}

	localPath, err := gitsource.LocalPath(im.CacheDir, source)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := gitsource.Sync(source, localPath, im.logger()); err != nil {
		return "", err
	}
	return localPath, nil
}

func (im *Importer) importCard(noteType *anki.NoteType, deck *anki.Deck, card domain.SourceCard) (bool, error) {
	guid := checksum.GUID(card)
	existing, err := im.Collection.FindNoteByGUID(guid)
	if err != nil {
		return false, err
	}
	if existing != nil {
		im.logger().Debug("card already imported", "guid", guid, "path", card.Path)
		return false, nil
	}

	note, err := anki.NewNote(noteType, deck)
	if err != nil {
		return false, err
	}
	if err := note.SetGUID(guid); err != nil {
		return false, err
	}
	for name, value := range map[string]string{
		questionField: card.Question,
		answerField:   card.Answer,
		contextField:  card.Context,
	} {
		if err := note.SetField(name, value); err != nil {
			return false, err
		}
	}
	if err := note.Save(); err != nil {
		return false, err
	}
	im.logger().Debug("new card imported", "guid", guid, "note_id", note.ID())
	return true, nil
}

func (im *Importer) ensureDeck() (*anki.Deck, error) {
	name := im.DeckName
	if name == "" {
		name = "Default"
	}
	deck, err := im.Collection.FindDeckBy(anki.ByName(name))
	if err != nil || deck != nil {
		return deck, err
	}
	deck, err = im.Collection.NewDeck(name, nil)
	if err != nil {
		return nil, err
	}
	if err := deck.Save(); err != nil {
		return nil, err
	}
	im.logger().Info("deck created", "name", name, "id", deck.ID())
	return deck, nil
}

// EnsureNoteType returns the note type imported cards use, adding it to the
// collection when it is missing.
func EnsureNoteType(c *anki.Collection) (*anki.NoteType, error) {
	nt, err := c.FindNoteTypeBy(anki.ByName(NoteTypeName))
	if err != nil || nt != nil {
		return nt, err
	}

	nt, err = c.NewNoteType(NoteTypeName, false)
	if err != nil {
		return nil, err
	}
	nt.NewNoteField(questionField)
	nt.NewNoteField(answerField)
	nt.NewNoteField(contextField)

	tmpl := nt.NewCardTemplate("Card 1")
	if err := tmpl.SetQuestionFormat("{{" + questionField + "}}"); err != nil {
		return nil, err
	}
	if err := tmpl.SetAnswerFormat(answerFormat); err != nil {
		return nil, err
	}
	if err := nt.Save(); err != nil {
		return nil, err
	}
	return nt, nil
}
