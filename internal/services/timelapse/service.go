package timelapse

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"xcam-worker-go/internal/config"
	"xcam-worker-go/internal/logging"
	"xcam-worker-go/internal/models"
	"xcam-worker-go/internal/services/assembler"
	"xcam-worker-go/internal/services/capture"
	"xcam-worker-go/internal/services/messaging"
)

// StateStore is the workspace slice the scheduler reads its orders from.
type StateStore interface {
	ReadControl() models.ControlState
	ReadRecordingConfig() models.RecordingConfig
	FreeDiskMB() int64
	FramesDir() string
	VideosDir() string
}

// Capturer acquires burst frames from the recording stream.
type Capturer interface {
	TestConnection(ctx context.Context, sourceURL string) error
	CaptureBurst(ctx context.Context, sourceURL string, width, height int, dir string) (capture.Candidate, error)
	CleanupBurst(dir string)
}

// FrameStore manages the session frame sequence.
type FrameStore interface {
	Append(selectedPath string) (int, error)
	Reset() error
	PruneBackups(keep int) error
}

// Assembler turns the finished session into a video file.
type Assembler interface {
	Assemble(ctx context.Context, out assembler.Output) error
}

// VideoEvent is published on timelapse.videos when a session finalizes.
type VideoEvent struct {
	Video     string    `json:"video"`
	Frames    int       `json:"frames"`
	Timestamp time.Time `json:"timestamp"`
}

// Scheduler drives the idle/recording state machine off the on-disk control
// state. One scheduler runs per worker; channel hopping is not supported, a
// session records a single stream.
type Scheduler struct {
	cfg       *config.Config
	store     StateStore
	capturer  Capturer
	frames    FrameStore
	assembler Assembler
	publisher messaging.Publisher
	log       zerolog.Logger

	recording  bool
	video      string
	frameCount int
	errorCount int
}

func NewScheduler(
	cfg *config.Config,
	store StateStore,
	capturer Capturer,
	frames FrameStore,
	asm Assembler,
	publisher messaging.Publisher,
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		store:     store,
		capturer:  capturer,
		frames:    frames,
		assembler: asm,
		publisher: publisher,
		log:       logging.NewServiceLogger(cfg, "timelapse"),
	}
}

// Run executes the state machine until ctx is cancelled. Cancellation during
// a recording finalizes the session before returning so an interrupted run
// still yields a video.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Msg("timelapse scheduler started")
	for {
		if ctx.Err() != nil {
			if s.recording {
				s.finalize()
			}
			s.log.Info().Msg("timelapse scheduler stopped")
			return
		}

		recordingCfg := s.store.ReadRecordingConfig()
		control := s.store.ReadControl()

		if !s.recording {
			if control.Status != models.RunStart {
				sleepCtx(ctx, s.cfg.IdleCheckInterval)
				continue
			}
			if control.Processing {
				s.log.Info().Msg("previous video still processing, waiting")
				sleepCtx(ctx, s.cfg.IdleCheckInterval)
				continue
			}
			if free := s.store.FreeDiskMB(); free < recordingCfg.DiskWarningThresholdMB {
				s.log.Warn().Int64("free_mb", free).Msg("low disk space, refusing to start")
				sleepCtx(ctx, s.cfg.DiskRecheckInterval)
				continue
			}
			if err := s.begin(control); err != nil {
				sleepCtx(ctx, s.cfg.IdleCheckInterval)
			}
			continue
		}

		if control.Status != models.RunStart {
			s.finalize()
			continue
		}

		s.tick(ctx, recordingCfg)
		sleepCtx(ctx, time.Duration(recordingCfg.Interval)*time.Second)
	}
}

// begin starts a fresh session: stale frames are discarded and counters
// reset. The caller backs off on error so a persistent reset failure does
// not spin the loop.
func (s *Scheduler) begin(control models.ControlState) error {
	if err := s.frames.Reset(); err != nil {
		s.log.Error().Err(err).Msg("failed to reset session frames")
		return err
	}
	s.video = control.CurrentVideo
	if s.video == "" {
		s.video = "timelapse_" + time.Now().Format("20060102_150405")
	}
	s.frameCount = 0
	s.errorCount = 0
	s.recording = true
	s.log.Info().Str("video", s.video).Msg("recording started")
	return nil
}

// tick captures one frame for the session. Nothing is captured while free
// disk sits below the warning threshold; the session stays open and capture
// resumes once space frees up.
func (s *Scheduler) tick(ctx context.Context, recordingCfg models.RecordingConfig) {
	if free := s.store.FreeDiskMB(); free < recordingCfg.DiskWarningThresholdMB {
		s.log.Warn().
			Int64("free_mb", free).
			Int64("threshold_mb", recordingCfg.DiskWarningThresholdMB).
			Msg("low disk space, skipping capture")
		return
	}

	winner, err := s.capturer.CaptureBurst(
		ctx,
		recordingCfg.RTSPURL,
		recordingCfg.FrameWidth,
		recordingCfg.FrameHeight,
		s.store.FramesDir(),
	)
	if err != nil {
		s.capturer.CleanupBurst(s.store.FramesDir())
		s.captureFailed(ctx, recordingCfg, err)
		return
	}

	index, err := s.frames.Append(winner.Path)
	if err != nil {
		s.captureFailed(ctx, recordingCfg, err)
		return
	}

	s.frameCount++
	s.errorCount = 0
	s.log.Info().
		Int("frame", index).
		Float64("sharpness", winner.Score).
		Msg("frame recorded")

	if s.frameCount%20 == 0 {
		s.log.Info().
			Int64("free_mb", s.store.FreeDiskMB()).
			Int("frames", s.frameCount).
			Msg("disk check")
	}
}

// captureFailed counts consecutive failures and pauses for recovery once the
// threshold is hit. A failed connectivity re-test extends the pause.
func (s *Scheduler) captureFailed(ctx context.Context, recordingCfg models.RecordingConfig, err error) {
	s.errorCount++
	s.log.Warn().Err(err).Int("consecutive_errors", s.errorCount).Msg("capture failed")
	if s.errorCount < s.cfg.ErrorThreshold {
		return
	}

	s.log.Error().Int("errors", s.errorCount).Msg("error threshold reached, pausing for recovery")
	sleepCtx(ctx, s.cfg.RecoveryPause)
	if probeErr := s.capturer.TestConnection(ctx, recordingCfg.RTSPURL); probeErr != nil {
		s.log.Error().Err(probeErr).Msg("stream unreachable, extending pause")
		sleepCtx(ctx, s.cfg.ConnectionLostPause)
	}
	s.errorCount = 0
}

// finalize assembles the session video. Frames are deleted only when the
// assembly succeeded; a failed encode keeps them for a manual retry. Session
// identity and counters reset either way.
func (s *Scheduler) finalize() {
	video := s.video
	frameCount := s.frameCount
	s.log.Info().Str("video", video).Int("frames", frameCount).Msg("finalizing recording")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.EncodeTimeout+time.Minute)
	defer cancel()

	name := video
	if !strings.HasSuffix(name, ".mp4") {
		name += ".mp4"
	}
	out := assembler.Output{
		SessionDir: s.store.FramesDir(),
		OutputPath: filepath.Join(s.store.VideosDir(), name),
		FPS:        s.store.ReadRecordingConfig().OutputFPS,
		Codec:      s.store.ReadRecordingConfig().Codec,
	}
	err := s.assembler.Assemble(ctx, out)
	if err != nil {
		s.log.Error().Err(err).Str("video", video).Msg("assembly failed, keeping session frames")
	} else {
		if resetErr := s.frames.Reset(); resetErr != nil {
			s.log.Warn().Err(resetErr).Msg("failed to clear session frames")
		}
		event := VideoEvent{Video: out.OutputPath, Frames: frameCount, Timestamp: time.Now()}
		if pubErr := s.publisher.Publish(messaging.SubjectTimelapseVideos, event); pubErr != nil {
			s.log.Warn().Err(pubErr).Msg("failed to publish video event")
		}
		s.log.Info().Str("video", out.OutputPath).Msg("recording finalized")
	}

	if pruneErr := s.frames.PruneBackups(s.cfg.BackupKeep); pruneErr != nil {
		s.log.Warn().Err(pruneErr).Msg("backup prune failed")
	}

	s.recording = false
	s.video = ""
	s.frameCount = 0
	s.errorCount = 0
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
