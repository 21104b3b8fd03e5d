package capture

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateFrame(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.jpg")
	writeTestImage(t, valid, 480, 640, 128, true)

	black := filepath.Join(dir, "black.jpg")
	writeTestImage(t, black, 480, 640, 0, false)

	white := filepath.Join(dir, "white.jpg")
	writeTestImage(t, white, 480, 640, 255, false)

	short := filepath.Join(dir, "short.jpg")
	writeTestImage(t, short, 50, 640, 128, true)

	tiny := filepath.Join(dir, "tiny.jpg")
	if err := os.WriteFile(tiny, []byte("not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr string // substring, empty means accepted
	}{
		{"valid frame accepted", valid, ""},
		{"solid black rejected", black, "brightness"},
		{"solid white rejected", white, "brightness"},
		{"undersized dimensions rejected", short, "dimensions"},
		{"undersized file rejected", tiny, "too small"},
		{"missing file rejected", filepath.Join(dir, "absent.jpg"), "missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFrame(tt.path)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected acceptance, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected rejection, frame accepted")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
