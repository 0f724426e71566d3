// README: Persisted ride shape shared by the RTDB store and the HTTP API.
package ride

import (
	"strings"
	"time"

	"rideshare/internal/types"
)

// DateTimeLayout renders as "MM-DD-YYYY hh:mm AM/PM".
const DateTimeLayout = "01-02-2006 03:04 PM"

// Record is the interoperable form of a ride. Vacant roles are null.
type Record struct {
	RideType        string  `json:"rideType"`
	DriverID        *string `json:"driverId"`
	RiderID         *string `json:"riderId"`
	DriverEmail     *string `json:"driverEmail"`
	RiderEmail      *string `json:"riderEmail"`
	From            string  `json:"from"`
	To              string  `json:"to"`
	DateTime        string  `json:"dateTime"`
	Accepted        bool    `json:"accepted"`
	DriverConfirmed bool    `json:"driverConfirmed"`
	RiderConfirmed  bool    `json:"riderConfirmed"`
	Version         int64   `json:"version"`
}

func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateTimeLayout)
}

func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, validationf("invalid date/time %q, want MM-DD-YYYY hh:mm AM/PM", s)
	}
	return t, nil
}

func ToRecord(r *Ride, loc *time.Location) Record {
	return Record{
		RideType:        string(r.Type),
		DriverID:        optional(string(r.DriverID)),
		RiderID:         optional(string(r.RiderID)),
		DriverEmail:     optional(r.DriverEmail),
		RiderEmail:      optional(r.RiderEmail),
		From:            r.From,
		To:              r.To,
		DateTime:        FormatDateTime(r.ScheduledAt, loc),
		Accepted:        r.Accepted,
		DriverConfirmed: r.DriverConfirmed,
		RiderConfirmed:  r.RiderConfirmed,
		Version:         r.Version,
	}
}

func FromRecord(id types.ID, rec Record, loc *time.Location) (*Ride, error) {
	at, err := ParseDateTime(rec.DateTime, loc)
	if err != nil {
		return nil, err
	}
	return &Ride{
		ID:              id,
		Type:            Type(rec.RideType),
		DriverID:        types.ID(deref(rec.DriverID)),
		RiderID:         types.ID(deref(rec.RiderID)),
		DriverEmail:     deref(rec.DriverEmail),
		RiderEmail:      deref(rec.RiderEmail),
		From:            rec.From,
		To:              rec.To,
		ScheduledAt:     at,
		Accepted:        rec.Accepted,
		DriverConfirmed: rec.DriverConfirmed,
		RiderConfirmed:  rec.RiderConfirmed,
		Version:         rec.Version,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
