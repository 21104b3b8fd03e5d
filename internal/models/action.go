package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionStatus is the job state machine: pending -> in_progress -> done|failed.
// Terminal states are final; a failed job is only reprocessed by inserting a
// new pending action.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionDone       ActionStatus = "done"
	ActionFailed     ActionStatus = "failed"
)

func (s ActionStatus) String() string { return string(s) }

// Terminal reports whether the status is done or failed.
func (s ActionStatus) Terminal() bool {
	return s == ActionDone || s == ActionFailed
}

// Commands dispatched by the action queue worker.
const (
	CommandCheckConfig      = "check_config"
	CommandCaptureAndStitch = "capture_and_stitch"
)

// Action is a queued unit of work against one or more cameras, persisted in
// xcam_actions. Additions holds the raw JSON payload.
type Action struct {
	ID        string       `json:"id"`
	Command   string       `json:"command"`
	Additions string       `json:"additions"`
	Status    ActionStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ActionPayload is the decoded additions payload. MACAddresses selects the
// cameras, Channels the video channels (defaults to channel 1).
type ActionPayload struct {
	MACAddresses []string `json:"mac_addresses"`
	Channels     []int    `json:"channels,omitempty"`
}

// ParseActionPayload decodes and validates an additions payload. Missing
// camera selection or channels outside 1..2 are rejected before dispatch.
func ParseActionPayload(raw string) (ActionPayload, error) {
	var p ActionPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("invalid additions payload: %w", err)
	}
	if len(p.MACAddresses) == 0 {
		return p, fmt.Errorf("no camera selected: mac_addresses is required")
	}
	if len(p.Channels) == 0 {
		p.Channels = []int{1}
	}
	for _, ch := range p.Channels {
		if ch < ChannelMin || ch > ChannelMax {
			return p, fmt.Errorf("invalid channel %d: only channels 1 and 2 are supported", ch)
		}
	}
	return p, nil
}

// CaptureRecord describes one successful frame capture within a
// capture_and_stitch job.
type CaptureRecord struct {
	Path     string `json:"path"`
	Position int    `json:"position"`
	IP       string `json:"ip"`
	Channel  int    `json:"channel"`
}

// CaptureMetadata is written as capture_info.json into the per-job capture
// directory, recording inputs and outputs regardless of partial failures.
type CaptureMetadata struct {
	Timestamp          string          `json:"timestamp"`
	TotalCameras       int             `json:"total_cameras"`
	Channels           []int           `json:"channels"`
	SuccessfulCaptures int             `json:"successful_captures"`
	Captures           []CaptureRecord `json:"captures"`
	StitchedImages     map[int]string  `json:"stitched_images"`
}
