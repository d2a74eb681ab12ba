// Command ankipack builds flashcard packages (.apkg) from markdown Q:/A:/C:
// sources, either as a new package or by adding to an existing one.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/conorfennell/ankipack/internal/apkg"
	"github.com/conorfennell/ankipack/internal/config"
	"github.com/conorfennell/ankipack/internal/importer"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
)

func main() {
	if err := mainImpl(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "ankipack: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl(args []string, stdout io.Writer) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      cfg.Level(),
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	var (
		res    importer.Result
		target string
	)
	work := func(p *apkg.Package) error {
		target = p.Path()
		c := p.Collection()
		c.SetClozePolicy(cfg.Cloze())
		if cfg.Source == "" {
			logger.Info("no source given, writing the package without new notes")
			return nil
		}
		im := &importer.Importer{
			Collection: c,
			DeckName:   cfg.Deck,
			CacheDir:   cfg.CacheDir,
			Logger:     logger,
		}
		res, err = im.Import(cfg.Source)
		return err
	}

	opts := []apkg.Option{apkg.WithLogger(logger)}
	if cfg.Update != "" {
		err = apkg.Update(cfg.Update, cfg.Backup, work, opts...)
	} else {
		if cfg.Legacy {
			opts = append(opts, apkg.WithLegacyDatabase())
		}
		err = apkg.Create(cfg.Name, cfg.OutputDir, work, opts...)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Wrote %s: %d cards found, %d added, %d already present, %d errors.\n",
		target, res.Parsed, res.Added, res.Skipped, len(res.Errors))
	if len(res.Errors) > 0 {
		fmt.Fprintln(stdout, "\nErrors:")
		for _, e := range res.Errors {
			fmt.Fprintf(stdout, "- %s\n", e)
		}
	}
	return nil
}
