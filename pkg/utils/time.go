package utils

import "time"

// Now returns the current time; a package var so tests can stub it.
var Now = time.Now

// Since returns the time elapsed since t, using Now.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

// NowMs returns the current time as epoch milliseconds — the unit
// publish-leave-time/subscribe-leave-time are tracked in.
func NowMs() int64 {
	return Now().UnixMilli()
}
