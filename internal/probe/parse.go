package probe

import (
	"regexp"
	"strconv"

	"ozzus/ring-exporter/internal/domain"
)

var (
	pingSummaryRegexp = regexp.MustCompile(`(?m)(\d+) packets transmitted, (\d+) received`)
	pingRttRegexp     = regexp.MustCompile(`(?m)rtt [^=]*= ([0-9.]+)/([0-9.]+)/([0-9.]+)/([0-9.]+)`)
)

// parseSummary extracts transmitted/received packet counts from ping
// output. A missing summary line counts as full loss.
func parseSummary(output string, fallbackSent int) (sent, received int) {
	matches := pingSummaryRegexp.FindStringSubmatch(output)
	if len(matches) != 3 {
		return fallbackSent, 0
	}

	sent, _ = strconv.Atoi(matches[1])
	received, _ = strconv.Atoi(matches[2])
	return sent, received
}

// parseRTT extracts the min/avg/max/mdev statistics line. Returns nil when
// the output carries no rtt summary, which callers classify as
// unparseable rather than as a crash.
func parseRTT(output string) *domain.RTTStats {
	matches := pingRttRegexp.FindStringSubmatch(output)
	if len(matches) != 5 {
		return nil
	}

	min, _ := strconv.ParseFloat(matches[1], 64)
	avg, _ := strconv.ParseFloat(matches[2], 64)
	max, _ := strconv.ParseFloat(matches[3], 64)
	mdev, _ := strconv.ParseFloat(matches[4], 64)

	return &domain.RTTStats{Min: min, Avg: avg, Max: max, Mdev: mdev}
}
