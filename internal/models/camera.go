package models

import (
	"fmt"
	"time"
)

// Channel identifiers supported by the cameras. Each device exposes two
// independent video channels on the same RTSP port.
const (
	ChannelMin = 1
	ChannelMax = 2
)

// Camera is a discovered device persisted in xcam_cameras. The MAC address is
// the stable identity; the IP address may change between discovery scans and
// is refreshed on upsert.
type Camera struct {
	ID         int64     `json:"id"`
	MACAddress string    `json:"mac_address"`
	IPAddress  string    `json:"ip_address"`
	IPType     string    `json:"ip_type"`
	Username   string    `json:"username"`
	Password   string    `json:"-"`
	Position   int       `json:"position"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RTSPURL builds the stream URL for one channel of this camera.
func (c *Camera) RTSPURL(channel int, encode string) string {
	return fmt.Sprintf("rtsp://%s:%s@%s:554/%s/ch%d/main/av_stream",
		c.Username, c.Password, c.IPAddress, encode, channel)
}

// CameraEndpoint is a raw discovery result (port scan joined with the ARP
// table) before it is persisted.
type CameraEndpoint struct {
	IP   string `json:"ip"`
	MAC  string `json:"mac"`
	Type string `json:"type"`
}

// CameraCache is the on-disk discovery cache. UpdatedAt is unix seconds;
// zero means the cache has never been populated.
type CameraCache struct {
	Cameras   []CameraEndpoint `json:"cameras"`
	UpdatedAt int64            `json:"updated_at"`
}

// Valid reports whether the cache holds at least one camera.
func (c *CameraCache) Valid() bool {
	return c != nil && c.UpdatedAt > 0 && len(c.Cameras) > 0
}

// Fresh reports whether the cache was refreshed within ttl of now.
func (c *CameraCache) Fresh(now time.Time, ttl time.Duration) bool {
	if !c.Valid() {
		return false
	}
	return now.Sub(time.Unix(c.UpdatedAt, 0)) < ttl
}
