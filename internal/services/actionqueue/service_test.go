package actionqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"xcam-worker-go/internal/config"
	"xcam-worker-go/internal/models"
	"xcam-worker-go/internal/services/capture"
	"xcam-worker-go/internal/services/messaging"
)

type fakeActionStore struct {
	updates []models.ActionStatus
}

func (f *fakeActionStore) ClaimableAction(context.Context, string) (*models.Action, error) {
	return nil, nil
}

func (f *fakeActionStore) UpdateStatus(_ context.Context, _ string, status models.ActionStatus) error {
	f.updates = append(f.updates, status)
	return nil
}

type fakeCameraStore struct {
	cameras  []models.Camera
	upserted [][]models.CameraEndpoint
}

func (f *fakeCameraStore) ByMACs(context.Context, []string) ([]models.Camera, error) {
	return f.cameras, nil
}

func (f *fakeCameraStore) UpsertEndpoints(_ context.Context, endpoints []models.CameraEndpoint) error {
	f.upserted = append(f.upserted, endpoints)
	return nil
}

type fakeCapturer struct {
	testErr      map[string]error
	captureErr   error
	captureErrOn string
	panicOn      string
	tested       []string
	captured     []string
}

func (f *fakeCapturer) TestConnection(_ context.Context, sourceURL string) error {
	if f.panicOn != "" && sourceURL == f.panicOn {
		panic("capturer exploded")
	}
	f.tested = append(f.tested, sourceURL)
	if err, ok := f.testErr[sourceURL]; ok {
		return err
	}
	return nil
}

func (f *fakeCapturer) CaptureFrame(_ context.Context, req capture.Request) error {
	if f.captureErr != nil {
		return f.captureErr
	}
	if f.captureErrOn != "" && strings.Contains(req.OutputPath, f.captureErrOn) {
		return errors.New("frame validation failed")
	}
	f.captured = append(f.captured, req.OutputPath)
	return os.WriteFile(req.OutputPath, []byte("frame"), 0o644)
}

type fakeStitcher struct {
	err   error
	calls [][]string
}

func (f *fakeStitcher) Stitch(_ context.Context, inputPaths []string, outputPath string) error {
	f.calls = append(f.calls, inputPaths)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte("pano"), 0o644)
}

type fakePublisher struct {
	subjects []string
	results  []ActionResult
}

func (f *fakePublisher) Publish(subject string, data interface{}) error {
	f.subjects = append(f.subjects, subject)
	if result, ok := data.(ActionResult); ok {
		f.results = append(f.results, result)
	}
	return nil
}

func testCamera(mac, ip string, position int) models.Camera {
	return models.Camera{
		MACAddress: mac,
		IPAddress:  ip,
		Username:   "admin",
		Password:   "pass",
		Position:   position,
	}
}

func newTestWorker(t *testing.T, cameras []models.Camera) (*Service, *fakeActionStore, *fakeCapturer, *fakePublisher) {
	t.Helper()
	actions := &fakeActionStore{}
	capturer := &fakeCapturer{}
	publisher := &fakePublisher{}
	svc := &Service{
		cfg: &config.Config{
			ActionOrder:    "desc",
			StreamEncoding: "h264",
		},
		log:       zerolog.Nop(),
		actions:   actions,
		cameras:   &fakeCameraStore{cameras: cameras},
		capturer:  capturer,
		stitcher:  &fakeStitcher{},
		publisher: publisher,
		framesDir: t.TempDir(),
		now:       time.Now,
	}
	return svc, actions, capturer, publisher
}

func pendingAction(command string, payload models.ActionPayload) *models.Action {
	raw, _ := json.Marshal(payload)
	return &models.Action{
		ID:        "a-1",
		Command:   command,
		Additions: string(raw),
		Status:    models.ActionPending,
		CreatedAt: time.Now(),
	}
}

func assertTerminal(t *testing.T, actions *fakeActionStore, want models.ActionStatus) {
	t.Helper()
	if len(actions.updates) != 2 {
		t.Fatalf("status updates = %v, want in_progress then terminal", actions.updates)
	}
	if actions.updates[0] != models.ActionInProgress {
		t.Errorf("first update = %v, want in_progress", actions.updates[0])
	}
	if actions.updates[1] != want {
		t.Errorf("terminal update = %v, want %v", actions.updates[1], want)
	}
}

func TestProcessCheckConfigAllReachable(t *testing.T) {
	cameras := []models.Camera{testCamera("aa:bb", "192.168.1.20", 1)}
	svc, actions, capturer, publisher := newTestWorker(t, cameras)

	action := pendingAction(models.CommandCheckConfig, models.ActionPayload{
		MACAddresses: []string{"aa:bb"},
		Channels:     []int{1, 2},
	})
	svc.process(context.Background(), action)

	assertTerminal(t, actions, models.ActionDone)
	if len(capturer.tested) != 2 {
		t.Errorf("connection tests = %d, want 2", len(capturer.tested))
	}
	if len(publisher.results) != 1 || publisher.results[0].Status != models.ActionDone {
		t.Errorf("published results = %+v", publisher.results)
	}
	if publisher.subjects[0] != messaging.SubjectActionResults {
		t.Errorf("subject = %q", publisher.subjects[0])
	}
}

func TestProcessCheckConfigFailureTestsRemaining(t *testing.T) {
	cameras := []models.Camera{
		testCamera("aa:bb", "192.168.1.20", 1),
		testCamera("cc:dd", "192.168.1.21", 2),
	}
	svc, actions, capturer, _ := newTestWorker(t, cameras)
	badURL := cameras[0].RTSPURL(1, "h264")
	capturer.testErr = map[string]error{badURL: errors.New("connection refused")}

	action := pendingAction(models.CommandCheckConfig, models.ActionPayload{
		MACAddresses: []string{"aa:bb", "cc:dd"},
		Channels:     []int{1},
	})
	svc.process(context.Background(), action)

	assertTerminal(t, actions, models.ActionFailed)
	// One failure must not stop testing the remaining camera.
	if len(capturer.tested) != 2 {
		t.Errorf("connection tests = %d, want 2", len(capturer.tested))
	}
}

func TestProcessPanicStillWritesTerminalStatus(t *testing.T) {
	cameras := []models.Camera{testCamera("aa:bb", "192.168.1.20", 1)}
	svc, actions, capturer, publisher := newTestWorker(t, cameras)
	capturer.panicOn = cameras[0].RTSPURL(1, "h264")

	action := pendingAction(models.CommandCheckConfig, models.ActionPayload{
		MACAddresses: []string{"aa:bb"},
	})
	svc.process(context.Background(), action)

	assertTerminal(t, actions, models.ActionFailed)
	if len(publisher.results) != 1 || publisher.results[0].Error == "" {
		t.Errorf("published result should carry the panic: %+v", publisher.results)
	}
}

func TestProcessUnknownCommandFails(t *testing.T) {
	svc, actions, capturer, _ := newTestWorker(t, nil)

	svc.process(context.Background(), &models.Action{ID: "a-1", Command: "reboot_everything"})

	assertTerminal(t, actions, models.ActionFailed)
	if len(capturer.tested) != 0 {
		t.Error("unknown command must have no side effects")
	}
}

func TestProcessInvalidPayloadFails(t *testing.T) {
	svc, actions, _, _ := newTestWorker(t, nil)

	svc.process(context.Background(), &models.Action{
		ID:        "a-1",
		Command:   models.CommandCheckConfig,
		Additions: `{"channels":[1]}`,
	})

	assertTerminal(t, actions, models.ActionFailed)
}

func TestCaptureAndStitchSingleCameraSucceeds(t *testing.T) {
	cameras := []models.Camera{testCamera("aa:bb", "192.168.1.20", 1)}
	svc, actions, _, _ := newTestWorker(t, cameras)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	svc.stitcher = &FFmpegStitcher{}

	action := pendingAction(models.CommandCaptureAndStitch, models.ActionPayload{
		MACAddresses: []string{"aa:bb"},
		Channels:     []int{1},
	})
	svc.process(context.Background(), action)

	assertTerminal(t, actions, models.ActionDone)

	captureDir := filepath.Join(svc.framesDir, "capture_20260301_120000")
	if _, err := os.Stat(filepath.Join(captureDir, "frame_ch1_192_168_1_20.jpg")); err != nil {
		t.Errorf("capture missing: %v", err)
	}
	// A single capture stitches by pass-through copy.
	if _, err := os.Stat(filepath.Join(captureDir, "stitched_ch1.jpg")); err != nil {
		t.Errorf("stitched output missing: %v", err)
	}

	var metadata models.CaptureMetadata
	data, err := os.ReadFile(filepath.Join(captureDir, "capture_info.json"))
	if err != nil {
		t.Fatalf("capture_info.json missing: %v", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		t.Fatal(err)
	}
	if metadata.SuccessfulCaptures != 1 || metadata.TotalCameras != 1 {
		t.Errorf("metadata = %+v", metadata)
	}
}

func TestCaptureAndStitchPartialFailureStitchesRemainder(t *testing.T) {
	cameras := []models.Camera{
		testCamera("aa:bb", "192.168.1.20", 1),
		testCamera("cc:dd", "192.168.1.21", 2),
	}
	svc, actions, capturer, _ := newTestWorker(t, cameras)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	svc.stitcher = &FFmpegStitcher{}
	capturer.captureErrOn = "192_168_1_20"

	action := pendingAction(models.CommandCaptureAndStitch, models.ActionPayload{
		MACAddresses: []string{"aa:bb", "cc:dd"},
		Channels:     []int{1},
	})
	svc.process(context.Background(), action)

	// Losing one camera's frame must not fail the job; the surviving
	// capture stitches alone by pass-through copy.
	assertTerminal(t, actions, models.ActionDone)

	captureDir := filepath.Join(svc.framesDir, "capture_20260301_120000")
	if _, err := os.Stat(filepath.Join(captureDir, "stitched_ch1.jpg")); err != nil {
		t.Errorf("stitched output missing: %v", err)
	}

	var metadata models.CaptureMetadata
	data, err := os.ReadFile(filepath.Join(captureDir, "capture_info.json"))
	if err != nil {
		t.Fatalf("capture_info.json missing: %v", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		t.Fatal(err)
	}
	if metadata.SuccessfulCaptures != 1 || metadata.TotalCameras != 2 {
		t.Errorf("metadata = %+v", metadata)
	}
	if len(metadata.Captures) != 1 || metadata.Captures[0].IP != "192.168.1.21" {
		t.Errorf("captures = %+v", metadata.Captures)
	}
}

func TestCaptureAndStitchZeroCapturesFails(t *testing.T) {
	cameras := []models.Camera{testCamera("aa:bb", "192.168.1.20", 1)}
	svc, actions, capturer, _ := newTestWorker(t, cameras)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	capturer.captureErr = errors.New("stream stalled")

	action := pendingAction(models.CommandCaptureAndStitch, models.ActionPayload{
		MACAddresses: []string{"aa:bb"},
	})
	svc.process(context.Background(), action)

	assertTerminal(t, actions, models.ActionFailed)

	// Metadata is written even when nothing was captured.
	captureDir := filepath.Join(svc.framesDir, "capture_20260301_120000")
	var metadata models.CaptureMetadata
	data, err := os.ReadFile(filepath.Join(captureDir, "capture_info.json"))
	if err != nil {
		t.Fatalf("capture_info.json missing: %v", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		t.Fatal(err)
	}
	if metadata.SuccessfulCaptures != 0 {
		t.Errorf("successful_captures = %d, want 0", metadata.SuccessfulCaptures)
	}
}

func TestCaptureAndStitchStitchFailureFailsJob(t *testing.T) {
	cameras := []models.Camera{
		testCamera("aa:bb", "192.168.1.20", 1),
		testCamera("cc:dd", "192.168.1.21", 2),
	}
	svc, actions, _, _ := newTestWorker(t, cameras)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	stitcher := &fakeStitcher{err: errors.New("not enough overlap")}
	svc.stitcher = stitcher

	action := pendingAction(models.CommandCaptureAndStitch, models.ActionPayload{
		MACAddresses: []string{"aa:bb", "cc:dd"},
	})
	svc.process(context.Background(), action)

	assertTerminal(t, actions, models.ActionFailed)
	if len(stitcher.calls) != 1 || len(stitcher.calls[0]) != 2 {
		t.Errorf("stitch calls = %v", stitcher.calls)
	}

	// Captures are still recorded in the metadata.
	captureDir := filepath.Join(svc.framesDir, "capture_20260301_120000")
	var metadata models.CaptureMetadata
	data, err := os.ReadFile(filepath.Join(captureDir, "capture_info.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		t.Fatal(err)
	}
	if metadata.SuccessfulCaptures != 2 || len(metadata.Captures) != 2 {
		t.Errorf("metadata = %+v", metadata)
	}
}

func TestRefreshCamerasUpsertsFreshScanOnly(t *testing.T) {
	endpoints := []models.CameraEndpoint{{IP: "192.168.1.20", MAC: "aa:bb"}}
	store := &fakeCameraStore{}
	svc, _, _, _ := newTestWorker(t, nil)
	svc.cameras = store

	cached := true
	svc.discovery = discoveryFunc(func(context.Context) ([]models.CameraEndpoint, bool, error) {
		return endpoints, cached, nil
	})

	svc.refreshCameras(context.Background())
	if len(store.upserted) != 0 {
		t.Error("cached discovery result must not be re-upserted")
	}

	cached = false
	svc.refreshCameras(context.Background())
	if len(store.upserted) != 1 {
		t.Fatalf("upsert calls = %d, want 1", len(store.upserted))
	}
	if fmt.Sprintf("%v", store.upserted[0]) != fmt.Sprintf("%v", endpoints) {
		t.Errorf("upserted = %v", store.upserted[0])
	}
}

type discoveryFunc func(ctx context.Context) ([]models.CameraEndpoint, bool, error)

func (f discoveryFunc) Cameras(ctx context.Context) ([]models.CameraEndpoint, bool, error) {
	return f(ctx)
}
