package capture

import "time"

// diagEpoch is an arbitrary fixed reference used only to store capture_end_us
// values inside a ringo.CircleTime (which wants time.Time) for diagnostics;
// it carries no relation to wall-clock time.
var diagEpoch = time.Unix(0, 0)

func timeFromUS(us uint32) time.Time {
	return diagEpoch.Add(time.Duration(us) * time.Microsecond)
}

func usFromTime(t time.Time) uint32 {
	return uint32(t.Sub(diagEpoch).Microseconds())
}
