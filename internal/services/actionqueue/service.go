package actionqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"xcam-worker-go/internal/config"
	"xcam-worker-go/internal/logging"
	"xcam-worker-go/internal/models"
	"xcam-worker-go/internal/services/capture"
	"xcam-worker-go/internal/services/messaging"
)

// ActionStore is the queue-facing slice of the action repository.
type ActionStore interface {
	ClaimableAction(ctx context.Context, order string) (*models.Action, error)
	UpdateStatus(ctx context.Context, id string, status models.ActionStatus) error
}

// CameraStore is the camera-facing slice of the repository.
type CameraStore interface {
	ByMACs(ctx context.Context, macs []string) ([]models.Camera, error)
	UpsertEndpoints(ctx context.Context, endpoints []models.CameraEndpoint) error
}

// Discovery resolves the cameras currently reachable on the network.
type Discovery interface {
	Cameras(ctx context.Context) (endpoints []models.CameraEndpoint, cached bool, err error)
}

// Capturer acquires single frames from RTSP sources.
type Capturer interface {
	TestConnection(ctx context.Context, sourceURL string) error
	CaptureFrame(ctx context.Context, req capture.Request) error
}

// ActionResult is published on actions.results after every terminal write.
type ActionResult struct {
	ActionID  string              `json:"action_id"`
	Command   string              `json:"command"`
	Status    models.ActionStatus `json:"status"`
	Error     string              `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Service polls the action queue and executes one job at a time. Every
// claimed job reaches a terminal status, panics included.
type Service struct {
	cfg       *config.Config
	log       zerolog.Logger
	actions   ActionStore
	cameras   CameraStore
	discovery Discovery
	capturer  Capturer
	stitcher  Stitcher
	publisher messaging.Publisher
	framesDir string
	now       func() time.Time
}

func NewService(
	cfg *config.Config,
	actions ActionStore,
	cameras CameraStore,
	disc Discovery,
	capturer Capturer,
	publisher messaging.Publisher,
	framesDir string,
) *Service {
	return &Service{
		cfg:       cfg,
		log:       logging.NewServiceLogger(cfg, "actionqueue"),
		actions:   actions,
		cameras:   cameras,
		discovery: disc,
		capturer:  capturer,
		stitcher:  NewFFmpegStitcher(cfg),
		publisher: publisher,
		framesDir: framesDir,
		now:       time.Now,
	}
}

// Run polls for pending actions until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.log.Info().Str("order", s.cfg.ActionOrder).Msg("action queue worker started")
	for {
		if ctx.Err() != nil {
			s.log.Info().Msg("action queue worker stopped")
			return
		}

		s.refreshCameras(ctx)

		action, err := s.actions.ClaimableAction(ctx, s.cfg.ActionOrder)
		switch {
		case err != nil:
			s.log.Error().Err(err).Msg("failed to poll action queue")
			sleepCtx(ctx, s.cfg.ActionErrorBackoff)
		case action == nil:
			sleepCtx(ctx, s.cfg.ActionPollInterval)
		default:
			s.process(ctx, action)
			sleepCtx(ctx, s.cfg.ActionPostJobDelay)
		}
	}
}

// refreshCameras re-runs discovery and persists fresh scan results. Cached
// results were already persisted by the scan that produced them.
func (s *Service) refreshCameras(ctx context.Context) {
	endpoints, cached, err := s.discovery.Cameras(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("camera discovery failed")
		return
	}
	if cached {
		return
	}
	if err := s.cameras.UpsertEndpoints(ctx, endpoints); err != nil {
		s.log.Error().Err(err).Msg("failed to upsert discovered cameras")
	}
}

// process runs one claimed action to a terminal status. The deferred block
// owns the terminal write so a panicking handler still fails the job instead
// of wedging it in in_progress.
func (s *Service) process(ctx context.Context, action *models.Action) {
	logger := logging.WithAction(s.log, action.ID)
	logger.Info().Str("command", action.Command).Msg("processing action")

	if err := s.actions.UpdateStatus(ctx, action.ID, models.ActionInProgress); err != nil {
		logger.Error().Err(err).Msg("failed to mark action in progress")
		return
	}

	status := models.ActionFailed
	var jobErr error
	defer func() {
		if r := recover(); r != nil {
			status = models.ActionFailed
			jobErr = fmt.Errorf("panic: %v", r)
			logger.Error().Interface("panic", r).Msg("action handler panicked")
		}
		s.finalize(action, status, jobErr, logger)
	}()

	switch action.Command {
	case models.CommandCheckConfig:
		jobErr = s.handleCheckConfig(ctx, action)
	case models.CommandCaptureAndStitch:
		jobErr = s.handleCaptureAndStitch(ctx, action)
	default:
		jobErr = fmt.Errorf("unknown command: %s", action.Command)
	}
	if jobErr == nil {
		status = models.ActionDone
	}
}

// finalize writes the terminal status with a fresh context so a cancelled job
// context cannot block the write, then publishes the result event.
func (s *Service) finalize(action *models.Action, status models.ActionStatus, jobErr error, logger zerolog.Logger) {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.actions.UpdateStatus(writeCtx, action.ID, status); err != nil {
		logger.Error().Err(err).Str("status", status.String()).Msg("failed to write terminal status")
	}

	result := ActionResult{
		ActionID:  action.ID,
		Command:   action.Command,
		Status:    status,
		Timestamp: s.now(),
	}
	if jobErr != nil {
		result.Error = jobErr.Error()
		logger.Error().Err(jobErr).Msg("action failed")
	} else {
		logger.Info().Msg("action done")
	}
	if err := s.publisher.Publish(messaging.SubjectActionResults, result); err != nil {
		logger.Warn().Err(err).Msg("failed to publish action result")
	}
}

// handleCheckConfig verifies every selected camera channel is reachable.
// All camera×channel pairs are tested even after a failure so the log shows
// the full picture.
func (s *Service) handleCheckConfig(ctx context.Context, action *models.Action) error {
	payload, err := models.ParseActionPayload(action.Additions)
	if err != nil {
		return err
	}
	cameras, err := s.cameras.ByMACs(ctx, payload.MACAddresses)
	if err != nil {
		return fmt.Errorf("load cameras: %w", err)
	}
	if len(cameras) == 0 {
		return fmt.Errorf("no known cameras match mac_addresses %v", payload.MACAddresses)
	}

	var failures []string
	for _, camera := range cameras {
		for _, channel := range payload.Channels {
			url := camera.RTSPURL(channel, s.cfg.StreamEncoding)
			if err := s.capturer.TestConnection(ctx, url); err != nil {
				s.log.Warn().
					Str("mac", camera.MACAddress).
					Int("channel", channel).
					Err(err).
					Msg("camera channel unreachable")
				failures = append(failures, fmt.Sprintf("%s/ch%d", camera.MACAddress, channel))
				continue
			}
			s.log.Info().
				Str("mac", camera.MACAddress).
				Int("channel", channel).
				Msg("camera channel reachable")
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("unreachable camera channels: %s", strings.Join(failures, ", "))
	}
	return nil
}

// handleCaptureAndStitch captures one frame per camera×channel into a
// per-job directory, then stitches each channel's captures into a composite.
// capture_info.json is written even when parts of the job fail.
func (s *Service) handleCaptureAndStitch(ctx context.Context, action *models.Action) error {
	payload, err := models.ParseActionPayload(action.Additions)
	if err != nil {
		return err
	}
	cameras, err := s.cameras.ByMACs(ctx, payload.MACAddresses)
	if err != nil {
		return fmt.Errorf("load cameras: %w", err)
	}
	if len(cameras) == 0 {
		return fmt.Errorf("no known cameras match mac_addresses %v", payload.MACAddresses)
	}

	timestamp := s.now().Format("20060102_150405")
	captureDir := filepath.Join(s.framesDir, "capture_"+timestamp)
	if err := os.MkdirAll(captureDir, 0o755); err != nil {
		return fmt.Errorf("create capture dir: %w", err)
	}

	metadata := &models.CaptureMetadata{
		Timestamp:      timestamp,
		TotalCameras:   len(cameras),
		Channels:       payload.Channels,
		StitchedImages: make(map[int]string),
	}
	defer s.writeCaptureInfo(captureDir, metadata)

	recording := s.captureAll(ctx, cameras, payload.Channels, captureDir)
	metadata.Captures = recording
	metadata.SuccessfulCaptures = len(recording)
	if len(recording) == 0 {
		return fmt.Errorf("no frames captured from %d cameras", len(cameras))
	}

	var stitchErrs []string
	for _, channel := range sortedChannels(recording) {
		var inputs []string
		for _, rec := range recording {
			if rec.Channel == channel {
				inputs = append(inputs, rec.Path)
			}
		}
		outputPath := filepath.Join(captureDir, fmt.Sprintf("stitched_ch%d.jpg", channel))
		if err := s.stitcher.Stitch(ctx, inputs, outputPath); err != nil {
			s.log.Error().Int("channel", channel).Err(err).Msg("stitch failed")
			stitchErrs = append(stitchErrs, fmt.Sprintf("ch%d: %v", channel, err))
			continue
		}
		metadata.StitchedImages[channel] = outputPath
		s.log.Info().Int("channel", channel).Str("output", outputPath).Msg("channel stitched")
	}
	if len(stitchErrs) > 0 {
		return fmt.Errorf("stitching failed: %s", strings.Join(stitchErrs, "; "))
	}
	return nil
}

// captureAll walks cameras and channels sequentially and returns the
// successful captures. Individual failures are logged and skipped.
func (s *Service) captureAll(ctx context.Context, cameras []models.Camera, channels []int, dir string) []models.CaptureRecord {
	recordingCfg := models.DefaultRecordingConfig()
	var records []models.CaptureRecord
	for _, camera := range cameras {
		logger := logging.WithCamera(s.log, camera.MACAddress)
		for _, channel := range channels {
			if ctx.Err() != nil {
				return records
			}
			url := camera.RTSPURL(channel, s.cfg.StreamEncoding)
			if err := s.capturer.TestConnection(ctx, url); err != nil {
				logger.Warn().Int("channel", channel).Err(err).Msg("skipping unreachable channel")
				continue
			}
			outputPath := filepath.Join(dir, captureFilename(channel, camera.IPAddress))
			req := capture.Request{
				SourceURL:  url,
				Width:      recordingCfg.FrameWidth,
				Height:     recordingCfg.FrameHeight,
				OutputPath: outputPath,
			}
			if err := s.capturer.CaptureFrame(ctx, req); err != nil {
				logger.Warn().Int("channel", channel).Err(err).Msg("capture failed")
				continue
			}
			records = append(records, models.CaptureRecord{
				Path:     outputPath,
				Position: camera.Position,
				IP:       camera.IPAddress,
				Channel:  channel,
			})
		}
	}
	return records
}

func (s *Service) writeCaptureInfo(dir string, metadata *models.CaptureMetadata) {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode capture metadata")
		return
	}
	path := filepath.Join(dir, "capture_info.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("failed to write capture metadata")
	}
}

func captureFilename(channel int, ip string) string {
	return fmt.Sprintf("frame_ch%d_%s.jpg", channel, strings.ReplaceAll(ip, ".", "_"))
}

func sortedChannels(records []models.CaptureRecord) []int {
	seen := make(map[int]bool)
	var channels []int
	for _, rec := range records {
		if !seen[rec.Channel] {
			seen[rec.Channel] = true
			channels = append(channels, rec.Channel)
		}
	}
	sort.Ints(channels)
	return channels
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
