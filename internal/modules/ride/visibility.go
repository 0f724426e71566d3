// README: View membership rules deciding which rides a viewer sees.
package ride

import (
	"sort"

	"rideshare/internal/types"
)

type View string

const (
	ViewActive         View = "active"
	ViewMyOffers       View = "myOffers"
	ViewMyRequests     View = "myRequests"
	ViewOthersOffers   View = "othersOffers"
	ViewOthersRequests View = "othersRequests"
)

var views = []View{ViewActive, ViewMyOffers, ViewMyRequests, ViewOthersOffers, ViewOthersRequests}

func ParseView(s string) (View, error) {
	for _, v := range views {
		if string(v) == s {
			return v, nil
		}
	}
	return "", validationf("unknown view %q", s)
}

// Accepted is the store partition the view draws from.
func (v View) Accepted() bool {
	return v == ViewActive
}

// Visible reports whether r belongs in view v for viewer. Malformed rides are never visible.
func Visible(r *Ride, viewer types.ID, v View) bool {
	if !r.WellFormed() {
		return false
	}
	switch v {
	case ViewActive:
		return r.Accepted && !(r.DriverConfirmed && r.RiderConfirmed) && r.Involves(viewer)
	case ViewMyOffers:
		return !r.Accepted && r.DriverID == viewer
	case ViewMyRequests:
		return !r.Accepted && r.RiderID == viewer
	case ViewOthersOffers:
		return !r.Accepted && r.Type == TypeOffer && r.DriverID != viewer
	case ViewOthersRequests:
		return !r.Accepted && r.Type == TypeRequest && r.RiderID != viewer
	}
	return false
}

// Filter returns the members of view v in ascending schedule order. The input slice is not reordered.
func Filter(rides []*Ride, viewer types.ID, v View) []*Ride {
	out := make([]*Ride, 0, len(rides))
	for _, r := range rides {
		if Visible(r, viewer, v) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
