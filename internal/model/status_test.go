package model

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

var allPlacementStatuses = []PlacementStatus{
	PlacementScheduled,
	PlacementProcessing,
	PlacementCompleted,
	PlacementFailed,
}

func placementRank(s PlacementStatus) int {
	switch s {
	case PlacementScheduled:
		return 0
	case PlacementProcessing:
		return 1
	default:
		return 2
	}
}

func TestPlacementStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to PlacementStatus
		want     bool
	}{
		{PlacementScheduled, PlacementProcessing, true},
		{PlacementScheduled, PlacementCompleted, false},
		{PlacementScheduled, PlacementFailed, false},
		{PlacementProcessing, PlacementCompleted, true},
		{PlacementProcessing, PlacementFailed, true},
		{PlacementProcessing, PlacementScheduled, false},
		{PlacementCompleted, PlacementFailed, false},
		{PlacementCompleted, PlacementScheduled, false},
		{PlacementFailed, PlacementScheduled, false},
		{PlacementFailed, PlacementCompleted, false},
	}

	for _, tc := range cases {
		assert.Equalf(t, tc.want, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPlacementStatus_Valid(t *testing.T) {
	for _, s := range allPlacementStatuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, PlacementStatus("published").Valid())
	assert.False(t, PlacementStatus("").Valid())
}

// Applying any sequence of requested transitions through CanTransitionTo
// never moves a placement backwards or out of a terminal state.
func TestPlacementStatus_MonotonicProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("observed statuses only move forward", prop.ForAll(
		func(steps []int) bool {
			current := PlacementScheduled
			for _, step := range steps {
				next := allPlacementStatuses[step]
				if !current.CanTransitionTo(next) {
					continue
				}
				if placementRank(next) <= placementRank(current) {
					return false
				}
				if current.Terminal() {
					return false
				}
				current = next
			}
			return current.Valid()
		},
		gen.SliceOf(gen.IntRange(0, len(allPlacementStatuses)-1)),
	))

	properties.TestingRun(t)
}

func TestJobStatus_Transitions(t *testing.T) {
	assert.True(t, JobQueued.CanTransitionTo(JobCompleted))
	assert.True(t, JobQueued.CanTransitionTo(JobFailed))
	assert.False(t, JobCompleted.CanTransitionTo(JobFailed))
	assert.False(t, JobFailed.CanTransitionTo(JobQueued))
	assert.False(t, JobQueued.CanTransitionTo(JobQueued))
}

func TestCampaignStatus_Transitions(t *testing.T) {
	assert.True(t, CampaignScheduled.CanTransitionTo(CampaignSending))
	assert.True(t, CampaignSending.CanTransitionTo(CampaignSent))
	assert.True(t, CampaignSending.CanTransitionTo(CampaignScheduled))
	assert.False(t, CampaignSent.CanTransitionTo(CampaignScheduled))
	assert.False(t, CampaignScheduled.CanTransitionTo(CampaignSent))
}

func TestRecipientStatus_Transitions(t *testing.T) {
	assert.True(t, RecipientQueued.CanTransitionTo(RecipientSent))
	assert.True(t, RecipientProcessing.CanTransitionTo(RecipientFailed))
	assert.False(t, RecipientSent.CanTransitionTo(RecipientFailed))
	assert.False(t, RecipientFailed.CanTransitionTo(RecipientQueued))
}
