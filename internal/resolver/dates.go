package resolver

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"paylog/internal/core"
)

var daysAgoRe = regexp.MustCompile(`^(\d+)\s*days?\s*ago$`)

// ResolveDate turns a relative time reference into a calendar date,
// anchored at the moment the message was received. An empty expression
// means the transaction happened now. Unrecognized expressions return
// ok=false so the caller can fall back to the received-at date.
func ResolveDate(expr string, receivedAt time.Time) (core.Date, bool) {
	expr = strings.ToLower(strings.TrimSpace(expr))

	switch expr {
	case "", "today", "now":
		return core.DateOf(receivedAt), true
	case "yesterday":
		return core.DateOf(receivedAt.AddDate(0, 0, -1)), true
	case "last week":
		// Start of the 7-day window ending 7 days ago: days -13..-7.
		return core.DateOf(receivedAt.AddDate(0, 0, -13)), true
	}

	if m := daysAgoRe.FindStringSubmatch(expr); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 0 {
			return core.Date{}, false
		}
		return core.DateOf(receivedAt.AddDate(0, 0, -n)), true
	}

	return core.Date{}, false
}
