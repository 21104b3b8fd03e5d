package capture

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Request describes one frame acquisition against a streaming source.
type Request struct {
	SourceURL  string
	Width      int
	Height     int
	OutputPath string
}

// Strategy is one concrete method of acquiring a single frame from a
// streaming source. Implementations are tried in a fixed priority order.
type Strategy interface {
	Name() string
	Capture(ctx context.Context, req Request) error
}

// runFFmpeg executes one bounded external ffmpeg invocation. The deadline
// forcibly terminates the child process; a hung ffmpeg never outlives it.
func runFFmpeg(ctx context.Context, timeout time.Duration, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.WaitDelay = 2 * time.Second

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("ffmpeg timed out after %s", timeout)
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, truncate(string(out), 256))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// tcpTransportStrategy forces TCP transport and MJPEG output, avoiding HEVC
// decode issues on flaky feeds. Highest priority.
type tcpTransportStrategy struct {
	timeout time.Duration
}

func (s tcpTransportStrategy) Name() string { return "tcp_transport" }

func (s tcpTransportStrategy) Capture(ctx context.Context, req Request) error {
	return runFFmpeg(ctx, s.timeout,
		"-rtsp_transport", "tcp",
		"-allowed_media_types", "video",
		"-i", req.SourceURL,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", req.Width, req.Height),
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-y",
		req.OutputPath,
		"-loglevel", "error",
	)
}

// udpTransportStrategy retries over UDP when the TCP path stalls.
type udpTransportStrategy struct {
	timeout time.Duration
}

func (s udpTransportStrategy) Name() string { return "udp_transport" }

func (s udpTransportStrategy) Capture(ctx context.Context, req Request) error {
	return runFFmpeg(ctx, s.timeout,
		"-rtsp_transport", "udp",
		"-i", req.SourceURL,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", req.Width, req.Height),
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-y",
		req.OutputPath,
		"-loglevel", "error",
	)
}

// altCodecStrategy takes the image2 muxer path with generated timestamps,
// the last resort for streams with broken PTS.
type altCodecStrategy struct {
	timeout time.Duration
}

func (s altCodecStrategy) Name() string { return "alt_codec" }

func (s altCodecStrategy) Capture(ctx context.Context, req Request) error {
	return runFFmpeg(ctx, s.timeout,
		"-rtsp_transport", "tcp",
		"-fflags", "+genpts",
		"-thread_queue_size", "512",
		"-i", req.SourceURL,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:%d,format=yuv420p", req.Width, req.Height),
		"-f", "image2",
		"-y",
		req.OutputPath,
		"-loglevel", "warning",
	)
}

// defaultStrategies returns the fixed priority order.
func defaultStrategies(timeout time.Duration) []Strategy {
	return []Strategy{
		tcpTransportStrategy{timeout: timeout},
		udpTransportStrategy{timeout: timeout},
		altCodecStrategy{timeout: timeout},
	}
}
