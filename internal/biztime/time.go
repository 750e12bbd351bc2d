// Package biztime holds the service-local time zone. Ticket timestamps and codes are
// rendered in this zone; nothing else in the bot depends on the host's Local setting.
package biztime

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"
)

const (
	DefaultTimezone = "Asia/Makassar"
	// Layout is the timestamp layout written to the record store.
	Layout = "2006-01-02 15:04:05"
)

var (
	mu       sync.RWMutex
	location *time.Location
)

// Init loads tz (DefaultTimezone when empty). Later calls replace the zone.
func Init(tz string) error {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("biztime: load %q: %w", tz, err)
	}
	mu.Lock()
	location = loc
	mu.Unlock()
	return nil
}

// Location returns the configured zone, initialising the default on first use.
func Location() *time.Location {
	mu.RLock()
	loc := location
	mu.RUnlock()
	if loc != nil {
		return loc
	}
	if err := Init(""); err != nil {
		panic(err)
	}
	return Location()
}

func Now() time.Time {
	return time.Now().In(Location())
}

// Format renders t in the service zone using Layout.
func Format(t time.Time) string {
	return t.In(Location()).Format(Layout)
}

// Parse reads a Layout timestamp in the service zone.
func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(Layout, s, Location())
}
