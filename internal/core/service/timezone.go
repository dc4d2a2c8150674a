package service

import (
	"errors"
	"math"
	"time"
	_ "time/tzdata"
)

// ResolveOffset returns the UTC offset in seconds of the named zone at now.
func ResolveOffset(name string, now time.Time) (int, error) {
	if name == "" {
		return 0, errors.New("empty time zone name")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return 0, err
	}
	_, offset := now.In(loc).Zone()
	return offset, nil
}

// OffsetFromClocks estimates the offset from the device local and UTC clocks,
// rounded to half hours.
func OffsetFromClocks(local, utc time.Time) int {
	delta := float64(local.Unix() - utc.Unix())
	return 1800 * int(math.Round(delta/1800))
}

// DayStartTimestamp is the start of the current device day as the device
// expects it in day statistics queries: local midnight shifted by the offset.
func DayStartTimestamp(now time.Time, offset int) int64 {
	zone := time.FixedZone("device", offset)
	local := now.In(zone)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, zone)
	return midnight.Unix() + int64(offset)
}
