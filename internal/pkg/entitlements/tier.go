package entitlements

import "strconv"

// Tier is the display colour of a window's "days left" badge.
type Tier string

const (
	TierRed    Tier = "red"
	TierOrange Tier = "orange"
	TierGreen  Tier = "green"
)

func TierFor(w Window) Tier {
	switch {
	case w.Expired, w.DaysLeft <= 1:
		return TierRed
	case w.DaysLeft <= 3:
		return TierOrange
	default:
		return TierGreen
	}
}

// StatusLabel is the short text shown next to the badge.
func StatusLabel(w Window) string {
	switch {
	case w.Expired:
		return "Expired"
	case w.DaysLeft == 1:
		return "1 day left"
	default:
		return strconv.Itoa(w.DaysLeft) + " days left"
	}
}
