// Package capture acquires still frames from RTSP sources. It layers a
// multi-strategy robust capture loop over bounded ffmpeg invocations, and
// selects the sharpest frame out of a small burst of candidates.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"xcam-worker-go/internal/config"
	"xcam-worker-go/internal/logging"
)

// Service orchestrates capture strategies with validation and retry.
type Service struct {
	cfg *config.Config
	log zerolog.Logger

	strategies []Strategy
	validate   func(path string) error
	sharpness  func(path string) float64
}

// NewService wires the fixed strategy order with the gocv-backed frame
// validation and sharpness scoring.
func NewService(cfg *config.Config) *Service {
	return &Service{
		cfg:        cfg,
		log:        logging.NewServiceLogger(cfg, "capture"),
		strategies: defaultStrategies(cfg.CaptureTimeout),
		validate:   ValidateFrame,
		sharpness:  Sharpness,
	}
}

// TestConnection probes the source by decoding two seconds of stream into a
// null sink. Used at session start, during error recovery, and by
// check_config jobs.
func (s *Service) TestConnection(ctx context.Context, sourceURL string) error {
	s.log.Info().Msg("Testing RTSP connection")
	err := runFFmpeg(ctx, s.cfg.ConnectTestTimeout,
		"-rtsp_transport", "tcp",
		"-i", sourceURL,
		"-t", "2",
		"-f", "null",
		"-",
		"-loglevel", "error",
	)
	if err != nil {
		return fmt.Errorf("rtsp connection test failed: %w", err)
	}
	return nil
}

// CaptureFrame captures a single validated frame. Each registered strategy is
// tried in priority order against the same output path; the first whose
// output passes validation wins. When the whole sequence fails it sleeps and
// restarts, bounded by MaxRetries, then fails permanently for this call.
func (s *Service) CaptureFrame(ctx context.Context, req Request) error {
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		for i, strat := range s.strategies {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := strat.Capture(ctx, req); err != nil {
				s.log.Debug().
					Str("strategy", strat.Name()).
					Int("method", i+1).
					Err(err).
					Msg("Capture strategy failed")
				continue
			}
			if err := s.validate(req.OutputPath); err != nil {
				s.log.Warn().
					Str("strategy", strat.Name()).
					Int("method", i+1).
					Err(err).
					Msg("Frame validation failed")
				continue
			}
			return nil
		}

		if attempt+1 < s.cfg.MaxRetries {
			s.log.Warn().
				Int("attempt", attempt+1).
				Int("max_retries", s.cfg.MaxRetries).
				Dur("delay", s.cfg.RetryDelay).
				Msg("All capture methods failed, retrying")
			if err := sleepCtx(ctx, s.cfg.RetryDelay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("max retries reached for frame capture from %s", req.SourceURL)
}

// CaptureBurst captures a short burst of candidate frames with pacing delays,
// scores each, and returns the sharpest. The temp candidates are left in dir
// for the caller to clean up after copying the winner.
func (s *Service) CaptureBurst(ctx context.Context, sourceURL string, width, height int, dir string) (Candidate, error) {
	candidates := make([]Candidate, 0, s.cfg.BurstSize)

	for i := 0; i < s.cfg.BurstSize; i++ {
		tempPath := filepath.Join(dir, fmt.Sprintf("temp_%03d.jpg", i))
		req := Request{SourceURL: sourceURL, Width: width, Height: height, OutputPath: tempPath}

		if err := s.CaptureFrame(ctx, req); err != nil {
			s.log.Warn().Int("candidate", i).Err(err).Msg("Failed to capture burst candidate")
			continue
		}

		score := s.sharpness(tempPath)
		candidates = append(candidates, Candidate{Path: tempPath, Score: score})

		if i+1 < s.cfg.BurstSize {
			if err := sleepCtx(ctx, s.cfg.BurstDelay); err != nil {
				return Candidate{}, err
			}
		}
	}

	best, ok := SelectBest(candidates)
	if !ok {
		return Candidate{}, fmt.Errorf("no good frames captured in burst of %d", s.cfg.BurstSize)
	}
	s.log.Info().Str("frame", filepath.Base(best.Path)).Float64("sharpness", best.Score).Msg("Selected best burst frame")
	return best, nil
}

// CleanupBurst removes leftover burst candidates from dir.
func (s *Service) CleanupBurst(dir string) {
	temps, err := filepath.Glob(filepath.Join(dir, "temp_*.jpg"))
	if err != nil {
		return
	}
	for _, t := range temps {
		if err := os.Remove(t); err != nil {
			s.log.Error().Str("path", t).Err(err).Msg("Failed to delete temp frame")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
