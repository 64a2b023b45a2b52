package countdown

import "testing"

func TestFormatClock(t *testing.T) {
	t.Parallel()
	for secs, want := range map[int]string{0: "0:00", 5: "0:05", 90: "1:30", 3600: "1:00:00", 3725: "1:02:05", -3: "0:00"} {
		if got := FormatClock(secs); got != want {
			t.Fatalf("FormatClock(%d) = %q, want %q", secs, got, want)
		}
	}
}
