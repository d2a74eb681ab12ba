package apkg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/ankipack/internal/anki"
	"github.com/conorfennell/ankipack/internal/common"
	"github.com/conorfennell/ankipack/internal/storage"
	"github.com/klauspost/compress/zip"
)

// OpenExisting opens the package archive at path for editing. With
// createBackup the archive is first copied to <path>.copy-<unix seconds>.
// The collection.anki21 database, or collection.anki2 when the archive has
// no newer one, is extracted to a working file next to the archive.
// Finalize writes it back into the archive in place; Discard leaves the
// archive untouched.
func OpenExisting(path string, createBackup bool, opts ...Option) (*Package, error) {
	if !strings.HasSuffix(path, Extension) {
		return nil, fmt.Errorf("%w: %s does not have the %s extension", common.ErrValidation, path, Extension)
	}
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: package file %s does not exist", common.ErrValidation, path)
	}

	p := newPackage(opts)
	p.dir = filepath.Dir(path)
	p.name = strings.TrimSuffix(filepath.Base(path), Extension)
	p.target = path
	p.source = path

	if createBackup {
		backup := fmt.Sprintf("%s.copy-%d", path, time.Now().Unix())
		if err := copyFile(path, backup); err != nil {
			return nil, err
		}
		p.logger.Info("package backed up", "path", path, "backup", backup)
	}

	if err := p.extractDatabase(); err != nil {
		p.closeAfter(err)
		p.removeTemps()
		return nil, err
	}
	p.logger.Debug("package opened", "path", path)
	return p, nil
}

func (p *Package) extractDatabase() error {
	r, err := zip.OpenReader(p.source)
	if err != nil {
		return fmt.Errorf("%w: %s is not a readable package: %w", common.ErrValidation, p.source, err)
	}
	defer r.Close()

	var entry *zip.File
	for _, name := range []string{anki21Entry, anki2Entry} {
		for _, f := range r.File {
			if f.Name == name {
				entry = f
				break
			}
		}
		if entry != nil {
			break
		}
	}
	if entry == nil {
		return fmt.Errorf("%w: %s holds neither %s nor %s", common.ErrValidation, p.source, anki21Entry, anki2Entry)
	}

	path := p.ownTemp(entry.Name)
	if err := extractFile(entry, path); err != nil {
		return err
	}

	db, err := storage.Open(path)
	if err != nil {
		return err
	}
	p.db = db

	collection, err := anki.NewCollection(db)
	if err != nil {
		return err
	}
	p.collection = collection
	return nil
}

func extractFile(f *zip.File, path string) error {
	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	defer in.Close()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create backup %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}
