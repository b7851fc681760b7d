package transcript

import (
	"fmt"
	"math"
)

// FormatTimestamp renders seconds as MM:SS, or HH:MM:SS when withHours is set.
func FormatTimestamp(seconds float64, withHours bool) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if withHours {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", total/60, s)
}

// FormatRange renders a citation label such as "[00:04–00:49]". Both ends switch to
// HH:MM:SS once the range reaches the first hour.
func FormatRange(start, end float64) string {
	if end < start {
		end = start
	}
	withHours := end >= 3600
	return fmt.Sprintf("[%s–%s]", FormatTimestamp(start, withHours), FormatTimestamp(end, withHours))
}
