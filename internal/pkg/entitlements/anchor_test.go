package entitlements

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool            { return &b }
func timePtr(t time.Time) *time.Time { return &t }

func TestResolveAnchorTrialUsesCreatedAt(t *testing.T) {
	created := date(2024, 4, 1)
	rec := Record{
		Feature:   FeatureInventory,
		IsTrial:   boolPtr(true),
		CreatedAt: created,
		PaidAt:    timePtr(date(2024, 4, 3)),
		EndsAt:    timePtr(date(2024, 4, 8)),
	}

	a := ResolveAnchor(rec, date(2024, 4, 5))
	assert.True(t, a.InTrial)
	assert.Equal(t, AnchorCreatedAt, a.Source)
	assert.Equal(t, created, a.Start)
	assert.Equal(t, date(2024, 4, 8), a.End)
}

func TestResolveAnchorPaidUsesPaidAt(t *testing.T) {
	rec := Record{
		IsTrial:   boolPtr(false),
		CreatedAt: date(2024, 1, 1),
		PaidAt:    timePtr(date(2024, 2, 1)),
		EndsAt:    timePtr(date(2024, 3, 1)),
	}

	a := ResolveAnchor(rec, date(2024, 2, 10))
	assert.False(t, a.InTrial)
	assert.Equal(t, AnchorPaidAt, a.Source)
	assert.Equal(t, date(2024, 2, 1), a.Start)
}

func TestResolveAnchorPaidWithoutPaidAtFallsBack(t *testing.T) {
	rec := Record{
		IsTrial:   boolPtr(false),
		CreatedAt: date(2024, 1, 1),
		EndsAt:    timePtr(date(2024, 2, 1)),
	}
	a := ResolveAnchor(rec, date(2024, 1, 20))
	assert.Equal(t, AnchorCreatedAt, a.Source)
	assert.Equal(t, date(2024, 1, 1), a.Start)
}

func TestInTrialHeuristicWhenFlagMissing(t *testing.T) {
	created := date(2024, 6, 1)
	rec := Record{CreatedAt: created}

	assert.True(t, InTrial(rec, created.Add(6*Day)))
	assert.False(t, InTrial(rec, created.Add(7*Day)))

	rec.PaidAt = timePtr(created.Add(Day))
	assert.False(t, InTrial(rec, created.Add(2*Day)))
}

func TestResolveAnchorMissingEnd(t *testing.T) {
	created := date(2024, 6, 1)

	trial := ResolveAnchor(Record{IsTrial: boolPtr(true), CreatedAt: created}, created.Add(Day))
	assert.Equal(t, created.Add(TrialLength), trial.End)

	paidAt := date(2024, 6, 10)
	paid := ResolveAnchor(Record{IsTrial: boolPtr(false), CreatedAt: created, PaidAt: &paidAt}, date(2024, 6, 12))
	assert.Equal(t, paidAt, paid.End)
	assert.True(t, Compute(paid.Start, paid.End, date(2024, 6, 12)).Expired)
}

func TestResolveAnchorMissingCreatedAtUsesNow(t *testing.T) {
	now := date(2024, 9, 9)
	a := ResolveAnchor(Record{}, now)
	assert.Equal(t, now, a.Start)
	assert.True(t, a.InTrial)
	assert.Equal(t, now.Add(TrialLength), a.End)
}
