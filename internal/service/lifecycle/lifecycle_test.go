package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
)

func TestRequestDirectEdges(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		effects []Effect
	}{
		{"confirm", Booked, Confirmed, nil},
		{"check in", Confirmed, CheckedIn, []Effect{EffectStampCheckIn, EffectCreateQueueEntry}},
		{"queue", CheckedIn, Waiting, []Effect{EffectMirrorQueue}},
		{"call", Waiting, Called, []Effect{EffectStampCalled, EffectMirrorQueue, EffectNotifyPatient}},
		{"recall", Called, Waiting, []Effect{EffectClearCalled, EffectMirrorQueue}},
		{"complete", InTreatment, Completed, []Effect{EffectReleaseResources, EffectStampTreatmentEnd, EffectMirrorQueue, EffectSignalOrchestrator}},
		{"cancel waiting", Waiting, Cancelled, []Effect{EffectRecordCancelReason, EffectReleaseResources, EffectMirrorQueue}},
		{"cancel called", Called, Cancelled, []Effect{EffectRecordCancelReason, EffectReleaseResources, EffectMirrorQueue, EffectSignalOrchestrator}},
		{"no show", Booked, NoShow, []Effect{EffectRecordCancelReason, EffectReleaseResources, EffectMirrorQueue}},
		{"feedback", Completed, FeedbackScheduled, nil},
		{"feedback sent", FeedbackScheduled, FeedbackSent, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Request(tt.from, tt.to, ModeNormal)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.False(t, d.Noop)
			assert.False(t, d.Delegated)
			require.Len(t, d.Steps, 1)
			assert.Equal(t, tt.from, d.Steps[0].From)
			assert.Equal(t, tt.to, d.Steps[0].To)
			assert.Equal(t, tt.effects, d.Steps[0].Effects)
		})
	}
}

func TestRequestInsertsHops(t *testing.T) {
	d, err := Request(Booked, CheckedIn, ModeNormal)
	require.NoError(t, err)
	require.Len(t, d.Steps, 2)
	assert.Equal(t, Confirmed, d.Steps[0].To)
	assert.Equal(t, CheckedIn, d.Steps[1].To)
	assert.True(t, d.Steps[1].Has(EffectCreateQueueEntry))

	d, err = Request(CheckedIn, Called, ModeNormal)
	require.NoError(t, err)
	require.Len(t, d.Steps, 2)
	assert.Equal(t, Waiting, d.Steps[0].To)
	assert.Equal(t, Called, d.Steps[1].To)
}

func TestRequestDelegatesTreatment(t *testing.T) {
	for _, from := range ClaimSources() {
		d, err := Request(from, InTreatment, ModeNormal)
		require.NoError(t, err, from)
		assert.True(t, d.Delegated, from)
		final, ok := d.Final()
		require.True(t, ok)
		assert.Equal(t, InTreatment, final.To)
		assert.True(t, final.Has(EffectClaimResources))
	}

	d, err := Request(Waiting, InTreatment, ModeReplay)
	require.NoError(t, err)
	assert.False(t, d.Delegated)
	assert.False(t, d.Steps[0].Has(EffectClaimResources))
	assert.True(t, d.Steps[0].Has(EffectStampTreatmentStart))
}

func TestRequestNoop(t *testing.T) {
	d, err := Request(Completed, Completed, ModeNormal)
	require.NoError(t, err)
	assert.True(t, d.Noop)
	assert.Empty(t, d.Steps)
}

func TestRequestRejects(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		kind apperrors.Kind
	}{
		{"skip ahead", Booked, Completed, apperrors.KindInvalidTransition},
		{"backwards", InTreatment, Waiting, apperrors.KindInvalidTransition},
		{"terminal cancel", Completed, Cancelled, apperrors.KindInvalidTransition},
		{"terminal reopen", Cancelled, Booked, apperrors.KindInvalidTransition},
		{"unknown target", Booked, Status("teleported"), apperrors.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Request(tt.from, tt.to, ModeNormal)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}
}

func TestPlanReplayWalksForward(t *testing.T) {
	steps, err := PlanReplay(Booked, Completed)
	require.NoError(t, err)

	var path []Status
	for _, s := range steps {
		path = append(path, s.To)
		assert.False(t, s.Has(EffectClaimResources), "replay must not claim")
	}
	assert.Equal(t, []Status{Confirmed, CheckedIn, Waiting, InTreatment, Completed}, path)

	steps, err = PlanReplay(Called, Completed)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, InTreatment, steps[0].To)

	steps, err = PlanReplay(Completed, Completed)
	require.NoError(t, err)
	assert.Empty(t, steps)

	_, err = PlanReplay(Cancelled, Completed)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))
}

func TestOverride(t *testing.T) {
	step, err := Override(Cancelled, Booked, "patient rebooked by phone")
	require.NoError(t, err)
	assert.Equal(t, Cancelled, step.From)
	assert.Equal(t, Booked, step.To)
	assert.True(t, step.Has(EffectReleaseResources))

	_, err = Override(Cancelled, Booked, "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = Override(Waiting, Booked, "oops")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))

	_, err = Override(Completed, InTreatment, "oops")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))
}

func TestTargetsIsACopy(t *testing.T) {
	targets := Targets(Booked)
	targets[0] = NoShow
	assert.True(t, Allowed(Booked, Confirmed))
}
