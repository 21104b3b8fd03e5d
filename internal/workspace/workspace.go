// Package workspace owns the fixed on-disk layout shared by the timelapse
// scheduler and the action queue worker: frame, backup, video, config and log
// directories plus the small JSON records in config/ (run-state control file,
// recording config, discovery cache).
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"xcam-worker-go/internal/models"
)

const (
	controlFile  = "control.json"
	configFile   = "config.json"
	camCacheFile = "cam_info.json"
)

// Store provides access to the workspace directories and persisted records.
type Store struct {
	root string
	log  zerolog.Logger
}

// New creates the workspace layout under root, creating any missing
// directories.
func New(root string) (*Store, error) {
	s := &Store{
		root: root,
		log:  log.With().Str("service", "workspace").Logger(),
	}
	for _, dir := range []string{root, s.FramesDir(), s.BackupsDir(), s.VideosDir(), s.ConfigDir(), s.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create workspace directory %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Store) Root() string       { return s.root }
func (s *Store) FramesDir() string  { return filepath.Join(s.root, "frames") }
func (s *Store) BackupsDir() string { return filepath.Join(s.root, "backups") }
func (s *Store) VideosDir() string  { return filepath.Join(s.root, "videos") }
func (s *Store) ConfigDir() string  { return filepath.Join(s.root, "config") }
func (s *Store) LogsDir() string    { return filepath.Join(s.root, "logs") }

// ReadControl returns the persisted run-state. A missing or unreadable
// control file yields the stopped default rather than an error.
func (s *Store) ReadControl() models.ControlState {
	var state models.ControlState
	if err := s.readJSON(controlFile, &state); err != nil {
		s.log.Debug().Err(err).Msg("Control file unreadable, using stopped default")
		return models.DefaultControlState()
	}
	return state
}

// WriteControl persists the run-state record.
func (s *Store) WriteControl(state models.ControlState) error {
	return s.writeJSON(controlFile, state)
}

// SetProcessing updates only the processing flag via read-modify-write. The
// scheduler is the single writer of this flag, so no file locking is needed.
func (s *Store) SetProcessing(processing bool) error {
	state := s.ReadControl()
	state.Processing = processing
	if err := s.WriteControl(state); err != nil {
		return fmt.Errorf("failed to update processing flag: %w", err)
	}
	s.log.Info().Bool("processing", processing).Msg("Processing status updated")
	return nil
}

// ReadRecordingConfig loads config.json, applying defaults for missing fields
// and quality preset dimensions. Called on every scheduler tick so settings
// can change while a session is live.
func (s *Store) ReadRecordingConfig() models.RecordingConfig {
	cfg := models.DefaultRecordingConfig()
	if err := s.readJSON(configFile, &cfg); err != nil {
		s.log.Debug().Err(err).Msg("Recording config unreadable, using defaults")
	}
	cfg.ApplyQualityPreset()
	return cfg
}

// ReadCameraCache returns the discovery cache; missing file yields an empty
// cache.
func (s *Store) ReadCameraCache() models.CameraCache {
	var cache models.CameraCache
	if err := s.readJSON(camCacheFile, &cache); err != nil {
		s.log.Debug().Err(err).Msg("Camera cache unreadable, treating as empty")
		return models.CameraCache{}
	}
	return cache
}

// WriteCameraCache persists the discovery cache.
func (s *Store) WriteCameraCache(cache models.CameraCache) error {
	return s.writeJSON(camCacheFile, cache)
}

// FreeDiskMB returns the free space of the filesystem holding the workspace,
// in megabytes. Errors are logged and reported as zero so callers treat them
// as exhausted space, never as fatal.
func (s *Store) FreeDiskMB() int64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(s.root, &stat); err != nil {
		s.log.Error().Err(err).Msg("Failed to stat workspace filesystem")
		return 0
	}
	return int64(stat.Bavail) * stat.Bsize / (1024 * 1024)
}

func (s *Store) readJSON(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.ConfigDir(), name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Store) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.ConfigDir(), name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
