package discovery

import (
	"context"
	"os/exec"
	"regexp"
	"strings"

	"xcam-worker-go/internal/models"
)

var (
	ipPattern  = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})\b`)
	macPattern = regexp.MustCompile(`\b([0-9a-fA-F]{2}(?:[:-][0-9a-fA-F]{2}){5})\b`)
)

// arpTable reads the system ARP cache and returns the IP to endpoint mapping.
func arpTable(ctx context.Context) (map[string]models.CameraEndpoint, error) {
	out, err := exec.CommandContext(ctx, "arp", "-a").CombinedOutput()
	if err != nil {
		return nil, err
	}
	return parseARPOutput(string(out)), nil
}

// parseARPOutput handles both the Linux ("? (ip) at mac [ether] on dev") and
// Windows ("ip  mac  dynamic") table formats.
func parseARPOutput(out string) map[string]models.CameraEndpoint {
	table := make(map[string]models.CameraEndpoint)
	for _, line := range strings.Split(out, "\n") {
		ipMatch := ipPattern.FindString(line)
		macMatch := macPattern.FindString(line)
		if ipMatch == "" || macMatch == "" {
			continue
		}
		entryType := "dynamic"
		if strings.Contains(line, "static") || strings.Contains(line, "PERM") {
			entryType = "static"
		}
		table[ipMatch] = models.CameraEndpoint{
			IP:   ipMatch,
			MAC:  normalizeMAC(macMatch),
			Type: entryType,
		}
	}
	return table
}

// normalizeMAC lowercases a MAC address and converts Windows dashes to colons.
func normalizeMAC(mac string) string {
	return strings.ToLower(strings.ReplaceAll(mac, "-", ":"))
}
