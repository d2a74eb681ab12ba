package apkg

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/ankipack/internal/anki"
	"github.com/conorfennell/ankipack/internal/common"
	"github.com/conorfennell/ankipack/internal/storage"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
)

// Extension is the file extension of package archives.
const Extension = ".apkg"

const (
	anki21Entry = "collection.anki21"
	anki2Entry  = "collection.anki2"
	mediaEntry  = "media"
)

// tempFile is a working file owned by a package and the archive entry it
// becomes on Finalize.
type tempFile struct {
	path  string
	entry string
}

// Package owns the temporary databases of one package being authored and
// the archive they are bundled into.
type Package struct {
	name   string
	dir    string
	target string
	// source is the archive being edited, or "" for a new package.
	source string

	temps      []tempFile
	db         *storage.DB
	collection *anki.Collection

	legacy bool
	logger *slog.Logger
	closed bool
	// written is set once the archive is in place at target.
	written bool
}

// Option configures a Package.
type Option func(*Package)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Package) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithLegacyDatabase also writes a collection.anki2 database holding the
// schema and seed row, for importers that only read the old file. It has no
// effect when editing an existing package.
func WithLegacyDatabase() Option {
	return func(p *Package) {
		p.legacy = true
	}
}

func newPackage(opts []Option) *Package {
	p := &Package{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// New creates a package named name that will be written to
// <dir>/<name>.apkg on Finalize. The name must be non-empty and contain no
// whitespace or slashes, and dir must be an existing directory.
func New(name, dir string, opts ...Option) (*Package, error) {
	if err := common.Validate.Var(name, "required,nowhitespace,excludesall=/"); err != nil {
		return nil, fmt.Errorf("%w: package name %q must be non-empty and contain no whitespace or slashes", common.ErrValidation, name)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", common.ErrValidation, dir)
	}

	p := newPackage(opts)
	p.name = name
	p.dir = dir
	p.target = filepath.Join(dir, name+Extension)

	if err := p.createDatabases(); err != nil {
		p.removeTemps()
		return nil, err
	}
	p.logger.Debug("package opened", "name", name, "target", p.target, "legacy", p.legacy)
	return p, nil
}

func (p *Package) createDatabases() error {
	seed, err := anki.NewCollectionSeed(time.Now())
	if err != nil {
		return fmt.Errorf("failed to build collection seed: %w", err)
	}

	path := p.ownTemp(anki21Entry)
	db, err := storage.Create(path, storage.Schema, seed)
	if err != nil {
		return err
	}
	p.db = db

	if p.legacy {
		legacy, err := storage.Create(p.ownTemp(anki2Entry), storage.Schema, seed)
		if err != nil {
			return p.closeAfter(err)
		}
		if err := legacy.Close(); err != nil {
			return p.closeAfter(err)
		}
	}

	collection, err := anki.NewCollection(db)
	if err != nil {
		return p.closeAfter(err)
	}
	p.collection = collection
	return nil
}

// closeAfter closes the working database after a failed setup step and
// returns the original error.
func (p *Package) closeAfter(err error) error {
	if p.db != nil && !p.db.IsClosed() {
		if cerr := p.db.Close(); cerr != nil {
			p.logger.Warn("failed to close database", "path", p.db.Path(), "error", cerr)
		}
	}
	return err
}

// ownTemp registers a new randomly named working file for entry and returns
// its path. Registration comes first so a half-created file is still removed.
func (p *Package) ownTemp(entry string) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	path := filepath.Join(p.dir, random+filepath.Ext(entry))
	p.temps = append(p.temps, tempFile{path: path, entry: entry})
	return path
}

// removeTemps deletes every owned working file and forgets it, so each file
// is removed at most once.
func (p *Package) removeTemps() {
	for _, t := range p.temps {
		if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("failed to remove temporary file", "path", t.path, "error", err)
		}
	}
	p.temps = nil
}

// Create opens a new package, runs work with it and finalizes it. When work
// fails the temporary databases are deleted, no archive is written, and the
// returned error wraps both common.ErrNothingPersisted and work's error.
// Work may finalize or discard the package itself; an error then wraps
// common.ErrNothingPersisted only if no archive was written.
func Create(name, dir string, work func(*Package) error, opts ...Option) error {
	p, err := New(name, dir, opts...)
	if err != nil {
		return err
	}
	return p.run(work)
}

// Update opens an existing package, runs work with it and writes the edited
// database back into the archive. On failure the archive is left untouched.
func Update(path string, createBackup bool, work func(*Package) error, opts ...Option) error {
	p, err := OpenExisting(path, createBackup, opts...)
	if err != nil {
		return err
	}
	return p.run(work)
}

// run executes work and then finalizes the package unless work already
// closed it. The result reports common.ErrNothingPersisted exactly when no
// archive was written. A panic in work discards the package and is re-raised.
func (p *Package) run(work func(*Package) error) error {
	defer func() {
		if r := recover(); r != nil {
			if !p.closed {
				if derr := p.Discard(); derr != nil {
					p.logger.Warn("failed to discard package", "target", p.target, "error", derr)
				}
			}
			panic(r)
		}
	}()

	if err := work(p); err != nil {
		if p.written {
			p.logger.Error("package work failed after the package was written", "target", p.target, "error", err)
			return err
		}
		p.logger.Error("package work failed, nothing persisted", "target", p.target, "error", err)
		if !p.closed {
			if derr := p.Discard(); derr != nil {
				p.logger.Warn("failed to discard package", "target", p.target, "error", derr)
			}
		}
		return fmt.Errorf("%w: %w", common.ErrNothingPersisted, err)
	}
	if !p.closed {
		if err := p.Finalize(); err != nil {
			return fmt.Errorf("%w: %w", common.ErrNothingPersisted, err)
		}
	}
	if !p.written {
		return fmt.Errorf("%w: package %s was discarded", common.ErrNothingPersisted, p.target)
	}
	return nil
}

// Finalize closes the database, bundles the working files into the archive
// and deletes them. It may be called once; later calls fail with
// common.ErrState. The working files are deleted even when writing the
// archive fails.
func (p *Package) Finalize() error {
	if p.closed {
		return fmt.Errorf("%w: package %s is already closed", common.ErrState, p.target)
	}
	p.closed = true
	defer p.removeTemps()

	if err := p.db.Close(); err != nil {
		return err
	}
	if err := p.writeArchive(); err != nil {
		return err
	}
	p.written = true
	p.logger.Info("package written", "path", p.target, "entries", len(p.temps)+1)
	return nil
}

// Discard closes the database and deletes the working files without writing
// an archive. An edited package's original archive is left as it was.
func (p *Package) Discard() error {
	if p.closed {
		return fmt.Errorf("%w: package %s is already closed", common.ErrState, p.target)
	}
	p.closed = true
	defer p.removeTemps()

	p.logger.Debug("package discarded", "target", p.target)
	return p.db.Close()
}

// writeArchive writes the archive next to its target and renames it into
// place, so a failure never leaves a partial file at the target path.
func (p *Package) writeArchive() (err error) {
	out, err := os.CreateTemp(p.dir, "."+p.name+"-*"+Extension)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	tmp := out.Name()
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	w := zip.NewWriter(out)
	written := map[string]bool{}
	for _, t := range p.temps {
		if err := addFile(w, t.entry, t.path); err != nil {
			return err
		}
		written[t.entry] = true
	}
	if p.source != "" {
		if err := copyEntries(w, p.source, written); err != nil {
			return err
		}
	}
	if !written[mediaEntry] {
		mw, err := w.Create(mediaEntry)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", mediaEntry, err)
		}
		if _, err := io.WriteString(mw, "{}"); err != nil {
			return fmt.Errorf("failed to add %s: %w", mediaEntry, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := os.Rename(tmp, p.target); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	return nil
}

func addFile(w *zip.Writer, entry, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	ew, err := w.Create(entry)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", entry, err)
	}
	if _, err := io.Copy(ew, f); err != nil {
		return fmt.Errorf("failed to add %s: %w", entry, err)
	}
	return nil
}

// copyEntries copies every entry of the source archive not in skip, marking
// each copied entry in skip.
func copyEntries(w *zip.Writer, source string, skip map[string]bool) error {
	r, err := zip.OpenReader(source)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", source, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if skip[f.Name] {
			continue
		}
		if err := w.Copy(f); err != nil {
			return fmt.Errorf("failed to copy %s from %s: %w", f.Name, source, err)
		}
		skip[f.Name] = true
	}
	return nil
}

// Collection returns the package's catalog store.
func (p *Package) Collection() *anki.Collection {
	return p.collection
}

// Name returns the package name.
func (p *Package) Name() string {
	return p.name
}

// Path returns the archive path the package is written to.
func (p *Package) Path() string {
	return p.target
}

// IsOpen reports whether the package database is open.
func (p *Package) IsOpen() bool {
	return p.db != nil && !p.db.IsClosed()
}

// IsClosed reports whether the package database has been closed.
func (p *Package) IsClosed() bool {
	return !p.IsOpen()
}
