package assembler

import (
	"strings"
	"testing"
)

func TestEncodeArgs(t *testing.T) {
	out := Output{SessionDir: "/work/frames", FPS: 5, Codec: "h264"}
	args := strings.Join(encodeArgs(out, "/work/videos/day1_tmp.mp4"), " ")

	for _, want := range []string{
		"-framerate 5",
		"-start_number 1",
		"-i /work/frames/frame_%06d.jpg",
		"-c:v libx264",
		"-preset medium",
		"-crf 23",
		"-pix_fmt yuv420p",
		"-movflags +faststart",
		"/work/videos/day1_tmp.mp4",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("encode args missing %q: %s", want, args)
		}
	}
}

func TestVideoCodec(t *testing.T) {
	cases := map[string]string{
		"h264": "libx264",
		"h265": "libx265",
		"hevc": "libx265",
		"":     "libx264",
	}
	for codec, want := range cases {
		if got := videoCodec(codec); got != want {
			t.Errorf("videoCodec(%q) = %q, want %q", codec, got, want)
		}
	}
}
