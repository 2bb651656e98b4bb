package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/aqcollect/internal/airquality"
	"github.com/breatheroute/aqcollect/pkg/atomicfile"
)

const filePerm = 0o644

// StoreConfig holds configuration for the dataset store.
type StoreConfig struct {
	// Path is the canonical CSV file (required).
	Path string

	// MirrorPath receives a best-effort copy after each successful write (optional).
	MirrorPath string

	// Now is used for backup file names (optional, defaults to time.Now).
	Now func() time.Time

	Logger zerolog.Logger
}

// Store loads, merges and persists the historical dataset.
// It assumes a single writer; concurrent Persist calls are not coordinated.
type Store struct {
	path       string
	mirrorPath string
	cleaner    *Cleaner
	now        func() time.Time
	logger     zerolog.Logger
}

// NewStore creates a new dataset store.
func NewStore(cfg StoreConfig) *Store {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		path:       cfg.Path,
		mirrorPath: cfg.MirrorPath,
		cleaner:    NewCleaner(cfg.Logger),
		now:        now,
		logger:     cfg.Logger,
	}
}

// Path returns the canonical file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the stored records. A missing or empty file yields no records.
// A file that cannot be parsed is renamed to a timestamped backup and no
// records are returned. Errors wrap ErrLoad.
func (s *Store) Load() ([]Record, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		s.logger.Info().Str("path", s.path).Msg("no existing data file, starting fresh")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrLoad, s.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %w", ErrLoad, s.path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrLoad, s.path)
	}
	if info.Size() == 0 {
		f.Close()
		s.logger.Warn().Str("path", s.path).Msg("existing file is empty, starting fresh")
		return nil, nil
	}

	records, readErr := ReadCSV(f)
	f.Close()

	if readErr != nil {
		s.logger.Error().Err(readErr).Str("path", s.path).Msg("error reading existing file")

		backup, err := s.backup()
		if err != nil {
			return nil, fmt.Errorf("%w: backing up unreadable file: %w", ErrLoad, err)
		}
		s.logger.Info().Str("backup", backup).Msg("backed up corrupted file")
		return nil, nil
	}

	s.logger.Info().Int("records", len(records)).Msg("loaded existing records")
	return records, nil
}

// BackupPath returns the backup name for path at time t:
// <name>_backup_YYYYMMDD_HHMMSS<ext>.
func BackupPath(path string, t time.Time) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_backup_" + t.Format("20060102_150405") + ext
}

func (s *Store) backup() (string, error) {
	base := BackupPath(s.path, s.now())

	target := base
	ext := filepath.Ext(base)
	for i := 1; ; i++ {
		if _, err := os.Lstat(target); errors.Is(err, os.ErrNotExist) {
			break
		}
		target = strings.TrimSuffix(base, ext) + "_" + strconv.Itoa(i) + ext
	}

	if err := os.Rename(s.path, target); err != nil {
		return "", err
	}
	return target, nil
}

// Persist merges readings into the stored dataset and atomically replaces
// the canonical file, then writes the secondary copy on a best-effort basis.
// It returns the persisted dataset.
func (s *Store) Persist(ctx context.Context, readings []airquality.Reading) (*Dataset, error) {
	if len(readings) == 0 {
		s.logger.Warn().Msg("no new data to save")
		return nil, ErrNoReadings
	}

	existing, err := s.Load()
	if err != nil {
		return nil, err
	}

	ds, _, err := s.cleaner.Merge(existing, RecordsFromReadings(readings))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMerge, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating directory: %w", ErrWrite, err)
		}
	}

	if err := s.write(s.path, ds); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("error saving file")
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	s.logger.Info().Str("path", s.path).Int("total_records", ds.Len()).Msg("data saved")

	s.writeMirror(ds)

	return ds, nil
}

func (s *Store) write(path string, ds *Dataset) error {
	return atomicfile.WriteFile(path, filePerm, func(w io.Writer) error {
		return WriteCSV(w, ds)
	})
}

// writeMirror never fails the caller; problems are logged as warnings.
func (s *Store) writeMirror(ds *Dataset) {
	if s.mirrorPath == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.mirrorPath), 0o755); err != nil {
		s.logger.Warn().Err(err).Str("path", s.mirrorPath).Msg("secondary location not available; skipping copy")
		return
	}

	if err := s.write(s.mirrorPath, ds); err != nil {
		s.logger.Warn().Err(err).Str("path", s.mirrorPath).Msg("secondary copy failed")
		return
	}

	s.logger.Info().Str("path", s.mirrorPath).Msg("secondary copy saved")
}

// Count returns the number of rows currently on file, or 0 when the file is
// absent or unreadable.
func (s *Store) Count() int {
	f, err := os.Open(s.path)
	if err != nil {
		return 0
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return 0
	}
	return len(records)
}
