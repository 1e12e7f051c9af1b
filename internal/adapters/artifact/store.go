// Package artifact persists trained unit parameters as YAML files so a
// promoted model survives restarts and a rollback can restore the previous
// set byte for byte.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/paddocklabs/gridcast/internal/domain/ensemble"
	"github.com/paddocklabs/gridcast/pkg/logger"
)

const (
	paramsExt = ".yaml"
	backupDir = "backup"
	metaFile  = "metadata.yaml"
	dirPerm   = 0o755
	filePerm  = 0o644
)

// Metadata describes the currently persisted model set.
type Metadata struct {
	Versions  map[string]string `yaml:"versions"`
	SavedAt   time.Time         `yaml:"saved_at"`
	TrainedOn int               `yaml:"trained_on"`
}

// Store reads and writes unit parameters under a base directory. One file
// per unit, a backup subdirectory for the pre-promotion set, and a metadata
// file describing the active versions.
type Store struct {
	dir string
	log logger.Logger
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger overrides the store's logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore creates the artifact store, creating the base and backup
// directories if missing.
func NewStore(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir: dir,
		log: logger.Named("artifact"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Join(dir, backupDir), dirPerm); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return s, nil
}

func (s *Store) paramsPath(unit string) string {
	return filepath.Join(s.dir, unit+paramsExt)
}

// Save writes one unit's parameter set.
func (s *Store) Save(unit string, p ensemble.Params) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode params for %s: %w", unit, err)
	}
	if err := os.WriteFile(s.paramsPath(unit), data, filePerm); err != nil {
		return fmt.Errorf("write params for %s: %w", unit, err)
	}

	s.log.Debug("saved unit params",
		logger.String("unit", unit),
		logger.String("version", p.Version))
	return nil
}

// Load reads one unit's parameter set. Returns ErrNotFound when the unit
// has never been persisted.
func (s *Store) Load(unit string) (ensemble.Params, error) {
	data, err := os.ReadFile(s.paramsPath(unit))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ensemble.Params{}, ErrNotFound
		}
		return ensemble.Params{}, fmt.Errorf("read params for %s: %w", unit, err)
	}

	var p ensemble.Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return ensemble.Params{}, fmt.Errorf("decode params for %s: %w", unit, err)
	}
	return p, nil
}

// Backup copies the current parameter files of the named units into the
// backup directory, replacing any previous backup.
func (s *Store) Backup(units []string) error {
	for _, unit := range units {
		data, err := os.ReadFile(s.paramsPath(unit))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("read params for backup of %s: %w", unit, err)
		}
		dst := filepath.Join(s.dir, backupDir, unit+paramsExt)
		if err := os.WriteFile(dst, data, filePerm); err != nil {
			return fmt.Errorf("write backup of %s: %w", unit, err)
		}
	}
	return nil
}

// Restore moves the backed-up parameter files back into place. Units with
// no backup are skipped.
func (s *Store) Restore(units []string) error {
	restored := 0
	for _, unit := range units {
		src := filepath.Join(s.dir, backupDir, unit+paramsExt)
		data, err := os.ReadFile(src)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("read backup of %s: %w", unit, err)
		}
		if err := os.WriteFile(s.paramsPath(unit), data, filePerm); err != nil {
			return fmt.Errorf("restore params of %s: %w", unit, err)
		}
		restored++
	}
	if restored == 0 {
		return ErrNoBackup
	}

	s.log.Info("restored unit params from backup", logger.Int("units", restored))
	return nil
}

// SaveMetadata writes the active-model metadata file.
func (s *Store) SaveMetadata(m Metadata) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, metaFile), data, filePerm); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// LoadMetadata reads the active-model metadata file. Returns ErrNotFound
// when no model has ever been persisted.
func (s *Store) LoadMetadata() (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, metaFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Metadata{}, ErrNotFound
		}
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}

	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
