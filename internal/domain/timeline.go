package domain

import "time"

// TimelineEvent is one entry in an order's audit trail, independent of
// the authoritative order row.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
