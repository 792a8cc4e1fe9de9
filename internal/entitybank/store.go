package entitybank

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Store holds the two persistence tiers in memory and reads/writes their
// backing JSON documents.
//
// A tier document is a single JSON object mapping canonical key to record,
// two-space indented, with HTML escaping off so non-ASCII merchant names
// survive round-trips readable. Saves rewrite the whole tier through a
// temp file and rename; partial writes never land.
//
// Store does no locking of its own. Service serializes all access; tests
// that use a Store directly are single-goroutine.
type Store struct {
	projectPath string
	globalPath  string
	logger      *zap.Logger

	project map[string]*Record
	global  map[string]*Record
}

// Open loads both tiers and returns a ready store.
//
// globalPath may be empty, which disables the global tier: reads see it
// empty and propagation becomes a no-op. A missing tier file is a normal
// first run; any other read failure degrades that tier to empty with a
// warning rather than failing the open.
func Open(projectPath, globalPath string, logger *zap.Logger) (*Store, error) {
	if projectPath == "" {
		return nil, ErrEmptyProjectPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		projectPath: projectPath,
		globalPath:  globalPath,
		logger:      logger,
	}
	s.project = s.loadTier(TierProject)
	s.global = s.loadTier(TierGlobal)

	logger.Info("entity store opened",
		zap.String("project_path", projectPath),
		zap.Int("project_records", len(s.project)),
		zap.Bool("global_enabled", s.globalEnabled()),
		zap.Int("global_records", len(s.global)))

	return s, nil
}

// Reload rebuilds one tier from disk, discarding its in-memory state.
// Load failures degrade to an empty tier exactly like Open.
func (s *Store) Reload(tier Tier) error {
	switch tier {
	case TierProject:
		s.project = s.loadTier(TierProject)
	case TierGlobal:
		s.global = s.loadTier(TierGlobal)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return nil
}

// Save rewrites one tier's document. Saving a disabled global tier is a
// no-op. Parent directories are created on demand.
func (s *Store) Save(tier Tier) error {
	path, records, err := s.tierState(tier)
	if err != nil {
		return err
	}
	if path == "" {
		return nil
	}

	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create tier directory: %w", err)
	}

	data, err := marshalTier(records)
	if err != nil {
		return fmt.Errorf("failed to encode %s tier: %w", tier, err)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write %s tier: %w", tier, err)
	}

	SaveDuration.WithLabelValues(string(tier)).Observe(time.Since(start).Seconds())
	TierRecords.WithLabelValues(string(tier)).Set(float64(len(records)))
	return nil
}

func (s *Store) globalEnabled() bool {
	return s.globalPath != ""
}

func (s *Store) tierState(tier Tier) (string, map[string]*Record, error) {
	switch tier {
	case TierProject:
		return s.projectPath, s.project, nil
	case TierGlobal:
		return s.globalPath, s.global, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
}

// loadTier reads one tier document, degrading every failure to an empty
// tier. Loaded records get absent fields defaulted so documents written
// by older or foreign tooling keep working.
func (s *Store) loadTier(tier Tier) map[string]*Record {
	path := s.projectPath
	if tier == TierGlobal {
		path = s.globalPath
	}
	if path == "" {
		return map[string]*Record{}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("tier file absent, starting empty",
				zap.String("tier", string(tier)), zap.String("path", path))
		} else {
			s.logger.Warn("failed to read tier file, starting empty",
				zap.String("tier", string(tier)), zap.String("path", path), zap.Error(err))
			TierLoadFailures.WithLabelValues(string(tier)).Inc()
		}
		return map[string]*Record{}
	}

	var records map[string]*Record
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("tier file unreadable, starting empty",
			zap.String("tier", string(tier)), zap.String("path", path), zap.Error(err))
		TierLoadFailures.WithLabelValues(string(tier)).Inc()
		return map[string]*Record{}
	}
	if records == nil {
		records = map[string]*Record{}
	}

	for key, rec := range records {
		// An empty key would substring-match every query.
		if key == "" || rec == nil {
			delete(records, key)
			continue
		}
		if rec.Name == "" {
			rec.Name = key
		}
		if rec.Aliases == nil {
			rec.Aliases = []string{}
		}
		if rec.Source == "" {
			rec.Source = SourceUser
		}
	}

	TierRecords.WithLabelValues(string(tier)).Set(float64(len(records)))
	return records
}

func marshalTier(records map[string]*Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never see a torn document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
