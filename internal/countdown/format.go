package countdown

import "fmt"

// FormatClock renders seconds as m:ss, or h:mm:ss from an hour up.
// Negative values render as zero.
func FormatClock(secs int) string {
	if secs < 0 {
		secs = 0
	}
	h, m, s := secs/3600, secs/60%60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
