// Package session owns the lifecycle of current-session frames and diagnostic
// backups on disk. Session frames are numbered frame_000001.jpg onward;
// backups carry their own independent monotonic numbering and space-bounded
// retention.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"xcam-worker-go/internal/config"
	"xcam-worker-go/internal/logging"
)

const (
	framePrefix  = "frame_"
	backupPrefix = "backup_"
	renumberDir  = "temp_renumber"
)

// ErrNoFrames is returned when an operation requires session frames and none
// exist.
var ErrNoFrames = errors.New("no session frames found")

// Service manages the frames and backups directories.
type Service struct {
	framesDir  string
	backupsDir string
	keep       int
	pruneEvery int
	appended   int
	remove     func(string) error
	log        zerolog.Logger
}

// NewService creates a session store over the given directories.
func NewService(cfg *config.Config, framesDir, backupsDir string) *Service {
	return &Service{
		framesDir:  framesDir,
		backupsDir: backupsDir,
		keep:       cfg.BackupKeep,
		pruneEvery: cfg.BackupPruneEvery,
		remove:     os.Remove,
		log:        logging.NewServiceLogger(cfg, "session"),
	}
}

// FramesDir returns the session frame directory.
func (s *Service) FramesDir() string { return s.framesDir }

// Append accepts a selected burst winner: copies it into the session sequence
// under the next index, copies it again as a backup under the backup
// sequence, and removes leftover burst temps. Every pruneEvery accepted
// frames old backups are purged. Returns the assigned frame index.
func (s *Service) Append(selectedPath string) (int, error) {
	index := s.nextIndex(s.framesDir, framePrefix) + 1
	framePath := filepath.Join(s.framesDir, fmt.Sprintf("%s%06d.jpg", framePrefix, index))
	if err := copyFile(selectedPath, framePath); err != nil {
		return 0, fmt.Errorf("failed to store frame %d: %w", index, err)
	}

	backupIndex := s.nextIndex(s.backupsDir, backupPrefix) + 1
	backupPath := filepath.Join(s.backupsDir, fmt.Sprintf("%s%06d.jpg", backupPrefix, backupIndex))
	if err := copyFile(selectedPath, backupPath); err != nil {
		// The session frame is already in place; a failed backup copy is not
		// worth losing the frame over.
		s.log.Error().Err(err).Int("backup_index", backupIndex).Msg("Failed to write backup frame")
	}

	s.removeTemps()

	s.appended++
	if s.pruneEvery > 0 && s.appended%s.pruneEvery == 0 {
		if err := s.PruneBackups(s.keep); err != nil {
			s.log.Error().Err(err).Msg("Backup pruning failed")
		}
	}

	s.log.Info().Int("frame", index).Msg("Frame appended to session")
	return index, nil
}

// List returns the session frame paths in name order.
func (s *Service) List() ([]string, error) {
	frames, err := filepath.Glob(filepath.Join(s.framesDir, framePrefix+"*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("failed to list session frames: %w", err)
	}
	sort.Strings(frames)
	return frames, nil
}

// Reset removes all frames of the current session. It never touches the
// backup directory; backups outlive sessions for diagnostics.
func (s *Service) Reset() error {
	frames, err := s.List()
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := os.Remove(f); err != nil {
			return fmt.Errorf("failed to remove session frame %s: %w", f, err)
		}
	}
	s.appended = 0
	s.log.Info().Int("frames", len(frames)).Msg("Cleaned up session frames")
	return nil
}

// PruneBackups keeps only the most recent keep backups by name order.
func (s *Service) PruneBackups(keep int) error {
	backups, err := filepath.Glob(filepath.Join(s.backupsDir, backupPrefix+"*.jpg"))
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) <= keep {
		return nil
	}
	sort.Strings(backups)
	stale := backups[:len(backups)-keep]
	for _, b := range stale {
		if err := os.Remove(b); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", b, err)
		}
	}
	s.log.Info().Int("removed", len(stale)).Msg("Cleaned up old backup frames")
	return nil
}

// Renumber rewrites the session frames as a fresh contiguous 1-based
// sequence, repairing gaps left by out-of-band deletions. Frames are copied
// into a scratch directory, originals deleted, and the renumbered files moved
// back. Content order follows the existing name order. Returns the frame
// count.
func (s *Service) Renumber() (int, error) {
	frames, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(frames) == 0 {
		return 0, ErrNoFrames
	}

	scratch := filepath.Join(s.framesDir, renumberDir)
	if leftovers, err := os.ReadDir(scratch); err == nil && len(leftovers) > 0 {
		// A previous renumber failed after deletions began; the scratch
		// copies may be the only surviving frames and need manual recovery.
		return 0, fmt.Errorf("renumber scratch dir %s holds %d frames from an earlier failure", scratch, len(leftovers))
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create renumber scratch dir: %w", err)
	}

	for i, frame := range frames {
		dst := filepath.Join(scratch, fmt.Sprintf("%s%06d.jpg", framePrefix, i+1))
		if err := copyFile(frame, dst); err != nil {
			// Originals are still intact; the partial scratch can go.
			os.RemoveAll(scratch)
			return 0, fmt.Errorf("failed to renumber frame %s: %w", frame, err)
		}
	}

	// Once originals start being deleted the scratch copies are the only
	// complete set, so it must survive any failure from here on.
	for _, frame := range frames {
		if err := s.remove(frame); err != nil {
			return 0, fmt.Errorf("failed to remove original frame %s (renumbered copies kept in %s): %w", frame, scratch, err)
		}
	}

	entries, err := os.ReadDir(scratch)
	if err != nil {
		return 0, fmt.Errorf("failed to read renumber scratch dir: %w", err)
	}
	for _, e := range entries {
		src := filepath.Join(scratch, e.Name())
		dst := filepath.Join(s.framesDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return 0, fmt.Errorf("failed to move renumbered frame %s: %w", e.Name(), err)
		}
	}
	if err := os.RemoveAll(scratch); err != nil {
		s.log.Error().Err(err).Msg("Failed to remove renumber scratch dir")
	}

	s.log.Info().Int("frames", len(frames)).Msg("Renumbered frames for video creation")
	return len(frames), nil
}

// nextIndex scans a directory for the highest existing sequence number with
// the given prefix. Scanning instead of counting keeps numbering correct when
// files are removed out of band.
func (s *Service) nextIndex(dir, prefix string) int {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*.jpg"))
	if err != nil {
		return 0
	}
	highest := 0
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".jpg")
		n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest
}

func (s *Service) removeTemps() {
	temps, err := filepath.Glob(filepath.Join(s.framesDir, "temp_*.jpg"))
	if err != nil {
		return
	}
	for _, t := range temps {
		if err := os.Remove(t); err != nil {
			s.log.Error().Err(err).Str("path", t).Msg("Failed to delete temp frame")
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
