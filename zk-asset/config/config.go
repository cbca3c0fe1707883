package config

import (
	"bufio"
	"fmt"
	"hash"
	"io"
	"os"
	"reflect"
	"runtime"

	"github.com/kysee/zkledger/utils"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/naoina/toml"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Config is the ledger node configuration.
type Config struct {
	// RootRetentionSeconds is how long, in ledger time, a tree root stays
	// usable by inputs after it stopped being current.
	RootRetentionSeconds uint64
	TreeHasher           string
	BaseCacheSize        int
	ProofWorkers         int

	// DataDir is where the LevelDB store lives. Empty keeps the ledger in
	// memory.
	DataDir   string
	DBCache   int
	DBHandles int

	LogLevel string
}

var Defaults = Config{
	RootRetentionSeconds: shielded.DefaultRootRetention,
	TreeHasher:           utils.HasherMiMC,
	BaseCacheSize:        1024,
	ProofWorkers:         runtime.NumCPU(),
	DBCache:              16,
	DBHandles:            16,
	LogLevel:             "info",
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// Load reads file over the defaults.
func Load(file string) (*Config, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	return cfg, nil
}

// Decode reads a TOML document over the defaults and validates the result.
func Decode(r io.Reader) (*Config, error) {
	cfg := Defaults
	if err := tomlSettings.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Marshal() ([]byte, error) {
	return tomlSettings.Marshal(c)
}

func (c *Config) Validate() error {
	if c.RootRetentionSeconds == 0 {
		return errors.New("config: RootRetentionSeconds must be positive")
	}
	if _, err := utils.HasherByName(c.TreeHasher); err != nil {
		return errors.Wrap(err, "config: TreeHasher")
	}
	if c.BaseCacheSize <= 0 {
		return errors.New("config: BaseCacheSize must be positive")
	}
	if c.ProofWorkers <= 0 {
		return errors.New("config: ProofWorkers must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "config: LogLevel")
	}
	return nil
}

// Hasher returns the constructor of the configured tree hasher.
func (c *Config) Hasher() func() hash.Hash {
	h, err := utils.HasherByName(c.TreeHasher)
	if err != nil {
		panic(err)
	}
	return h
}

// NewLogger builds the node logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
