package capture

import (
	"fmt"
	"os"

	"gocv.io/x/gocv"
)

// Validation thresholds. Brightness bounds are exclusive on a 0-255 scale;
// a mean luma at or outside them indicates a solid-black or solid-white frame
// from a corrupted or blank feed.
const (
	MinFrameBytes = 1000
	MinFrameDim   = 100
	MinBrightness = 5.0
	MaxBrightness = 250.0
)

// ValidateFrame checks a captured frame for acceptance: the file exists, is
// large enough, decodes with sufficient dimensions, and has a plausible mean
// brightness. A validation failure is treated by callers exactly like a
// failed capture attempt.
func ValidateFrame(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("frame missing: %w", err)
	}
	if info.Size() < MinFrameBytes {
		return fmt.Errorf("frame too small: %d bytes", info.Size())
	}

	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		return fmt.Errorf("frame not decodable: %s", path)
	}
	defer img.Close()

	if img.Cols() < MinFrameDim || img.Rows() < MinFrameDim {
		return fmt.Errorf("frame dimensions too small: %dx%d", img.Cols(), img.Rows())
	}

	brightness := img.Mean().Val1
	if brightness <= MinBrightness || brightness >= MaxBrightness {
		return fmt.Errorf("frame brightness unusual: %.2f", brightness)
	}
	return nil
}
