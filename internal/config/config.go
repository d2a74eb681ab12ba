package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/conorfennell/ankipack/internal/anki"
	"github.com/conorfennell/ankipack/internal/common"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment variables read as configuration, e.g.
// ANKIPACK_OUTPUT_DIR.
const EnvPrefix = "ANKIPACK_"

// Config is the ankipack command configuration.
type Config struct {
	// Name of a new package; ignored when Update is set.
	Name        string `koanf:"name" validate:"required_without=Update,omitempty,nowhitespace,excludesall=/"`
	OutputDir   string `koanf:"output_dir" validate:"required"`
	Source      string `koanf:"source"`
	Deck        string `koanf:"deck" validate:"required"`
	Update      string `koanf:"update" validate:"omitempty,endswith=.apkg"`
	Backup      bool   `koanf:"backup"`
	CacheDir    string `koanf:"cache_dir" validate:"required"`
	LogLevel    string `koanf:"log_level" validate:"oneof=debug info warn error"`
	Legacy      bool   `koanf:"legacy"`
	ClozePolicy string `koanf:"cloze_policy" validate:"oneof=template reference"`
}

// Flags returns the command-line flags. Their defaults are the configuration
// defaults.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("ankipack", pflag.ContinueOnError)
	fs.String("config", "", "YAML configuration file")
	fs.String("name", "", "name of the package to create")
	fs.String("output-dir", ".", "directory the package is written to")
	fs.String("source", "", "directory or git URL holding markdown cards")
	fs.String("deck", "Default", "deck imported cards go to")
	fs.String("update", "", "existing .apkg to add cards to instead of creating one")
	fs.Bool("backup", true, "copy the package before updating it")
	fs.String("cache-dir", "repos", "directory git sources are checked out in")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.Bool("legacy", false, "also write a collection.anki2 database")
	fs.String("cloze-policy", "template", "cloze cards per template or per reference")
	return fs
}

// Load parses args and merges, lowest priority first, flag defaults, the
// YAML file named by --config, ANKIPACK_* environment variables and the
// flags given on the command line.
func Load(args []string) (*Config, error) {
	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Unchanged flags only fill keys no other source set.
	err = k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(fs, f)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration, naming every invalid key.
func (c *Config) Validate() error {
	err := common.Validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: invalid configuration: %s", common.ErrValidation, strings.Join(msgs, ", "))
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Cloze returns the cloze card policy named by ClozePolicy.
func (c *Config) Cloze() anki.ClozePolicy {
	if c.ClozePolicy == "reference" {
		return anki.ClozePerReference
	}
	return anki.ClozePerTemplate
}
