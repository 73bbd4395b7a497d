package utils

import (
	"log"
	"time"
)

const DefaultDateFormat = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date string.
// Logs an error and returns zero time if parsing fails.
func ParseDate(dateStr string) time.Time {
	t, err := time.Parse(DefaultDateFormat, dateStr)
	if err != nil {
		log.Printf("Error parsing date '%s' with format '%s': %v. Returning zero time.", dateStr, DefaultDateFormat, err)
		return time.Time{}
	}
	return t
}

// AuctionClose returns the official end-of-day auction instant (16:00
// exchange time) for a YYYY-MM-DD date. Synthetic expiration and assignment
// events are stamped with it, and the narrative's expiration heuristic
// matches against it.
func AuctionClose(dateStr string, loc *time.Location) time.Time {
	d := ParseDate(dateStr)
	return time.Date(d.Year(), d.Month(), d.Day(), 16, 0, 0, 0, loc)
}
