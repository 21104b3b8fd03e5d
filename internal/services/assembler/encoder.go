package assembler

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"xcam-worker-go/internal/config"
)

// FFmpegEncoder encodes a numbered jpeg sequence with an external ffmpeg
// process under a hard deadline.
type FFmpegEncoder struct {
	timeout time.Duration
}

func NewFFmpegEncoder(cfg *config.Config) *FFmpegEncoder {
	return &FFmpegEncoder{timeout: cfg.EncodeTimeout}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, out Output, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", encodeArgs(out, destPath)...)
	cmd.WaitDelay = 2 * time.Second

	if outBytes, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("ffmpeg encode timed out after %s", e.timeout)
		}
		return fmt.Errorf("ffmpeg encode failed: %w: %s", err, truncate(string(outBytes), 256))
	}
	return nil
}

func encodeArgs(out Output, destPath string) []string {
	return []string{
		"-y",
		"-framerate", strconv.Itoa(out.FPS),
		"-start_number", "1",
		"-i", filepath.Join(out.SessionDir, "frame_%06d.jpg"),
		"-c:v", videoCodec(out.Codec),
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		destPath,
		"-loglevel", "error",
	}
}

func videoCodec(codec string) string {
	switch codec {
	case "h265", "hevc":
		return "libx265"
	default:
		return "libx264"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
