package entitlements

import "time"

// TrialLength applies when a source does not say whether a grant is a trial
// or does not carry an end for it.
const TrialLength = 7 * Day

type AnchorSource string

const (
	AnchorCreatedAt AnchorSource = "created_at"
	AnchorPaidAt    AnchorSource = "paid_at"
)

// Anchor is the [Start, End] pair a window is computed over.
type Anchor struct {
	Start   time.Time
	End     time.Time
	InTrial bool
	Source  AnchorSource
}

// InTrial trusts the record's flag and only guesses when it is absent:
// an unpaid grant younger than TrialLength counts as a trial.
func InTrial(rec Record, now time.Time) bool {
	if rec.IsTrial != nil {
		return *rec.IsTrial
	}
	return rec.PaidAt == nil && now.Before(createdAt(rec, now).Add(TrialLength))
}

func ResolveAnchor(rec Record, now time.Time) Anchor {
	a := Anchor{
		Start:   createdAt(rec, now),
		InTrial: InTrial(rec, now),
		Source:  AnchorCreatedAt,
	}
	if !a.InTrial && rec.PaidAt != nil && !rec.PaidAt.IsZero() {
		a.Start = *rec.PaidAt
		a.Source = AnchorPaidAt
	}

	switch {
	case rec.EndsAt != nil && !rec.EndsAt.IsZero():
		a.End = *rec.EndsAt
	case a.InTrial:
		a.End = a.Start.Add(TrialLength)
	default:
		// paid grant without an end: empty window, reads as expired
		a.End = a.Start
	}
	return a
}

func createdAt(rec Record, now time.Time) time.Time {
	if rec.CreatedAt.IsZero() {
		return now
	}
	return rec.CreatedAt
}
