package assembler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"xcam-worker-go/internal/config"
	"xcam-worker-go/internal/logging"
)

var (
	// ErrNotEnoughFrames is returned when a session holds fewer than two frames.
	ErrNotEnoughFrames = errors.New("not enough frames to assemble video")

	// ErrFirstFrameMissing is returned when the frame sequence does not start at
	// frame_000001.jpg, which ffmpeg's image2 demuxer requires.
	ErrFirstFrameMissing = errors.New("first frame of sequence is missing")
)

// Output describes a single assembly run.
type Output struct {
	SessionDir string
	OutputPath string
	FPS        int
	Codec      string
}

// FrameStore is the slice of the session store the assembler needs.
type FrameStore interface {
	Renumber() (int, error)
}

// ProcessingFlag persists the busy marker so concurrent recordings are refused
// across process restarts.
type ProcessingFlag interface {
	SetProcessing(on bool) error
}

// Encoder turns a renumbered frame sequence into a video file at destPath.
type Encoder interface {
	Encode(ctx context.Context, out Output, destPath string) error
}

// Service assembles a session's frame sequence into a final video. The encode
// writes to a temporary sibling file and only renames onto the final path on
// success, so a partially written video never shadows a good one.
type Service struct {
	frames  FrameStore
	flag    ProcessingFlag
	encoder Encoder
	log     zerolog.Logger
}

func NewService(cfg *config.Config, frames FrameStore, flag ProcessingFlag, encoder Encoder) *Service {
	return &Service{
		frames:  frames,
		flag:    flag,
		encoder: encoder,
		log:     logging.NewServiceLogger(cfg, "assembler"),
	}
}

// Assemble renumbers the session frames and encodes them to out.OutputPath.
func (s *Service) Assemble(ctx context.Context, out Output) error {
	if err := s.flag.SetProcessing(true); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist processing flag")
	}
	defer func() {
		if err := s.flag.SetProcessing(false); err != nil {
			s.log.Warn().Err(err).Msg("failed to clear processing flag")
		}
	}()

	count, err := s.frames.Renumber()
	if err != nil {
		return fmt.Errorf("renumber frames: %w", err)
	}
	if count < 2 {
		s.log.Warn().Int("frames", count).Msg("refusing to assemble short sequence")
		return ErrNotEnoughFrames
	}
	first := filepath.Join(out.SessionDir, "frame_000001.jpg")
	if _, err := os.Stat(first); err != nil {
		s.log.Error().Str("path", first).Msg("frame sequence does not start at 1")
		return ErrFirstFrameMissing
	}

	tempPath := tempOutputPath(out.OutputPath)
	s.log.Info().
		Int("frames", count).
		Str("output", out.OutputPath).
		Str("codec", out.Codec).
		Int("fps", out.FPS).
		Msg("assembling video")

	if err := s.encoder.Encode(ctx, out, tempPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil && !os.IsNotExist(removeErr) {
			s.log.Warn().Err(removeErr).Str("path", tempPath).Msg("failed to remove partial encode")
		}
		return fmt.Errorf("encode video: %w", err)
	}
	if err := os.Rename(tempPath, out.OutputPath); err != nil {
		return fmt.Errorf("finalize video: %w", err)
	}

	s.log.Info().Str("output", out.OutputPath).Msg("video assembled")
	return nil
}

func tempOutputPath(finalPath string) string {
	ext := filepath.Ext(finalPath)
	return strings.TrimSuffix(finalPath, ext) + "_tmp" + ext
}
