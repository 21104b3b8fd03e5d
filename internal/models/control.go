package models

// RunStatus is the desired run-state written by the control surface.
type RunStatus string

const (
	RunStart RunStatus = "start"
	RunStop  RunStatus = "stop"
)

// ControlState is the small persisted run-state record. Status is written by
// the control surface; Processing is owned by the scheduler and guards the
// recording/encoding mutual exclusion across process restarts.
type ControlState struct {
	Status       RunStatus `json:"status"`
	Processing   bool      `json:"processing"`
	CurrentVideo string    `json:"current_video,omitempty"`
}

// DefaultControlState is returned when the control file is missing or
// unreadable.
func DefaultControlState() ControlState {
	return ControlState{Status: RunStop, Processing: false}
}

// RecordingConfig is re-read on every scheduler tick so interval, quality and
// codec can change while a session is live.
type RecordingConfig struct {
	RTSPURL                string `json:"rtsp_url"`
	Interval               int    `json:"interval"`
	Quality                string `json:"quality"`
	OutputFPS              int    `json:"output_fps"`
	Codec                  string `json:"codec"`
	FrameWidth             int    `json:"frame_width"`
	FrameHeight            int    `json:"frame_height"`
	DiskWarningThresholdMB int64  `json:"disk_warning_threshold"`
}

// DefaultRecordingConfig mirrors the defaults used when config.json is absent.
func DefaultRecordingConfig() RecordingConfig {
	return RecordingConfig{
		Interval:               10,
		Quality:                "720p",
		OutputFPS:              5,
		Codec:                  "h264",
		FrameWidth:             1280,
		FrameHeight:            720,
		DiskWarningThresholdMB: 1024,
	}
}

// ApplyQualityPreset overrides frame dimensions when a known quality preset
// is selected.
func (c *RecordingConfig) ApplyQualityPreset() {
	switch c.Quality {
	case "480p":
		c.FrameWidth, c.FrameHeight = 640, 480
	case "720p":
		c.FrameWidth, c.FrameHeight = 1280, 720
	case "1080p":
		c.FrameWidth, c.FrameHeight = 1920, 1080
	}
}
