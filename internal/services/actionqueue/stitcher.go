package actionqueue

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"xcam-worker-go/internal/config"
)

// Stitcher combines a channel's captures into a single composite image.
type Stitcher interface {
	Stitch(ctx context.Context, inputPaths []string, outputPath string) error
}

// FFmpegStitcher joins captures side by side with ffmpeg's hstack filter.
// Cameras sit at fixed positions along a row, and capture scales every frame
// to the same dimensions, so a horizontal composite in position order yields
// the combined view. A single input is copied through unchanged; there is
// nothing to join.
type FFmpegStitcher struct {
	timeout time.Duration
}

func NewFFmpegStitcher(cfg *config.Config) *FFmpegStitcher {
	return &FFmpegStitcher{timeout: cfg.EncodeTimeout}
}

func (s *FFmpegStitcher) Stitch(ctx context.Context, inputPaths []string, outputPath string) error {
	if len(inputPaths) == 0 {
		return fmt.Errorf("no images to stitch")
	}
	if len(inputPaths) == 1 {
		return copyImage(inputPaths[0], outputPath)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", stitchArgs(inputPaths, outputPath)...)
	cmd.WaitDelay = 2 * time.Second

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("ffmpeg stitch timed out after %s", s.timeout)
		}
		return fmt.Errorf("ffmpeg stitch failed: %w: %s", err, truncate(string(out), 256))
	}
	return nil
}

func stitchArgs(inputPaths []string, outputPath string) []string {
	args := make([]string, 0, 2*len(inputPaths)+9)
	for _, path := range inputPaths {
		args = append(args, "-i", path)
	}
	args = append(args,
		"-filter_complex", fmt.Sprintf("hstack=inputs=%d", len(inputPaths)),
		"-frames:v", "1",
		"-q:v", "3",
		"-y",
		outputPath,
		"-loglevel", "error",
	)
	return args
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func copyImage(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
