// Package unixtime converts timestamps to the Unix-seconds floats the API exposes.
package unixtime

import "time"

// Seconds keeps millisecond precision.
func Seconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

// Ptr passes nil through so absent dates serialize as null.
func Ptr(t *time.Time) *float64 {
	if t == nil {
		return nil
	}
	s := Seconds(*t)
	return &s
}
