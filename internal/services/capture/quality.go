package capture

import (
	"gocv.io/x/gocv"

	"github.com/rs/zerolog/log"
)

// Candidate is one scored frame within a burst.
type Candidate struct {
	Path  string
	Score float64
}

// Sharpness computes an edge-energy score for a frame: the variance of the
// Laplacian response over the grayscale image. Higher means sharper. Errors
// score zero so a broken candidate can never win a burst.
func Sharpness(path string) float64 {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		log.Error().Str("path", path).Msg("Failed to read frame for sharpness scoring")
		return 0
	}
	defer img.Close()

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(img, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	stddev := gocv.NewMat()
	defer mean.Close()
	defer stddev.Close()
	gocv.MeanStdDev(lap, &mean, &stddev)

	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd
}

// SelectBest returns the strictly maximum-scoring candidate; ties resolve to
// the earliest capture order. Returns false when no candidate scored above
// zero, meaning the whole burst failed.
func SelectBest(candidates []Candidate) (Candidate, bool) {
	best := Candidate{Score: 0}
	found := false
	for _, c := range candidates {
		if c.Score > best.Score {
			best = c
			found = true
		}
	}
	return best, found
}
