// Package lifecycle decides which appointment status changes are legal and
// which side effects each one carries. It holds no state and performs no I/O;
// callers execute the returned effects in order.
package lifecycle

import (
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
)

type Status = model.AppointmentStatus

const (
	Booked            = model.AppointmentStatusBooked
	Confirmed         = model.AppointmentStatusConfirmed
	CheckedIn         = model.AppointmentStatusCheckedIn
	Waiting           = model.AppointmentStatusWaiting
	Called            = model.AppointmentStatusCalled
	InTreatment       = model.AppointmentStatusInTreatment
	Completed         = model.AppointmentStatusCompleted
	FeedbackScheduled = model.AppointmentStatusFeedbackScheduled
	FeedbackSent      = model.AppointmentStatusFeedbackSent
	Cancelled         = model.AppointmentStatusCancelled
	NoShow            = model.AppointmentStatusNoShow
)

// Effect is one unit of work a transition requires.
type Effect string

const (
	EffectStampCheckIn        Effect = "stamp_check_in"
	EffectCreateQueueEntry    Effect = "create_queue_entry"
	EffectStampCalled         Effect = "stamp_called"
	EffectClearCalled         Effect = "clear_called"
	EffectNotifyPatient       Effect = "notify_patient"
	EffectClaimResources      Effect = "claim_resources"
	EffectStampTreatmentStart Effect = "stamp_treatment_start"
	EffectReleaseResources    Effect = "release_resources"
	EffectStampTreatmentEnd   Effect = "stamp_treatment_end"
	EffectRecordCancelReason  Effect = "record_cancel_reason"
	EffectSignalOrchestrator  Effect = "signal_orchestrator"
	EffectMirrorQueue         Effect = "mirror_queue"
)

// Mode selects how in_treatment is reached.
type Mode int

const (
	// ModeNormal delegates in_treatment to the resource claim.
	ModeNormal Mode = iota
	// ModeReplay walks through in_treatment without claiming anything.
	ModeReplay
)

// Step is a single edge with its effects.
type Step struct {
	From    Status   `json:"from"`
	To      Status   `json:"to"`
	Effects []Effect `json:"effects"`
}

func (s Step) Has(e Effect) bool {
	for _, x := range s.Effects {
		if x == e {
			return true
		}
	}
	return false
}

// Decision is the answer to a transition request.
type Decision struct {
	Allowed bool
	// Noop is set when the appointment is already in the target status.
	Noop bool
	// Delegated means the final step must be performed by the resource claim.
	Delegated bool
	Steps     []Step
}

// Final returns the last step, or false when there is none.
func (d Decision) Final() (Step, bool) {
	if len(d.Steps) == 0 {
		return Step{}, false
	}
	return d.Steps[len(d.Steps)-1], true
}

var edges = map[Status][]Status{
	Booked:            {Confirmed, Cancelled, NoShow},
	Confirmed:         {CheckedIn, Cancelled, NoShow},
	CheckedIn:         {Waiting, Cancelled, NoShow},
	Waiting:           {Called, InTreatment, Cancelled, NoShow},
	Called:            {InTreatment, Waiting, Cancelled, NoShow},
	InTreatment:       {Completed, Cancelled},
	Completed:         {FeedbackScheduled},
	FeedbackScheduled: {FeedbackSent},
}

// implicit hops inserted ahead of a requested edge
var hops = map[[2]Status]Status{
	{Booked, CheckedIn}: Confirmed,
	{CheckedIn, Called}: Waiting,
}

// Targets lists the statuses directly reachable from s.
func Targets(s Status) []Status {
	out := make([]Status, len(edges[s]))
	copy(out, edges[s])
	return out
}

// Allowed reports whether from -> to is a direct edge.
func Allowed(from, to Status) bool {
	for _, t := range edges[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ClaimSources are the statuses a resource claim may start from.
func ClaimSources() []Status {
	return []Status{CheckedIn, Waiting, Called}
}

// Request validates current -> target and returns the ordered steps to apply.
func Request(current, target Status, mode Mode) (Decision, error) {
	if !target.Valid() {
		return Decision{}, errors.Validation("unknown status "+string(target), nil)
	}
	if current == target {
		return Decision{Allowed: true, Noop: true}, nil
	}

	path, err := directPath(current, target)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Allowed: true}
	for i, edge := range path {
		d.Steps = append(d.Steps, Step{From: edge[0], To: edge[1], Effects: effectsFor(edge[0], edge[1], mode)})
		if edge[1] == InTreatment && mode == ModeNormal && i == len(path)-1 {
			d.Delegated = true
		}
	}
	return d, nil
}

func directPath(current, target Status) ([][2]Status, error) {
	if Allowed(current, target) {
		return [][2]Status{{current, target}}, nil
	}
	if mid, ok := hops[[2]Status{current, target}]; ok {
		return [][2]Status{{current, mid}, {mid, target}}, nil
	}
	// checked_in -> in_treatment goes through waiting as well.
	if current == CheckedIn && target == InTreatment {
		return [][2]Status{{CheckedIn, Waiting}, {Waiting, InTreatment}}, nil
	}
	if current.Terminal() {
		return nil, errors.InvalidTransition(string(current), string(target), "already terminal")
	}
	return nil, errors.InvalidTransition(string(current), string(target), "invalid transition")
}

func effectsFor(from, to Status, mode Mode) []Effect {
	switch to {
	case CheckedIn:
		return []Effect{EffectStampCheckIn, EffectCreateQueueEntry}
	case Waiting:
		if from == Called {
			return []Effect{EffectClearCalled, EffectMirrorQueue}
		}
		return []Effect{EffectMirrorQueue}
	case Called:
		return []Effect{EffectStampCalled, EffectMirrorQueue, EffectNotifyPatient}
	case InTreatment:
		if mode == ModeNormal {
			return []Effect{EffectClaimResources, EffectStampTreatmentStart, EffectMirrorQueue, EffectNotifyPatient}
		}
		return []Effect{EffectStampTreatmentStart, EffectMirrorQueue}
	case Completed:
		return []Effect{EffectReleaseResources, EffectStampTreatmentEnd, EffectMirrorQueue, EffectSignalOrchestrator}
	case Cancelled, NoShow:
		effects := []Effect{EffectRecordCancelReason, EffectReleaseResources, EffectMirrorQueue}
		if from.Active() {
			effects = append(effects, EffectSignalOrchestrator)
		}
		return effects
	}
	return nil
}

// PlanReplay returns the shortest forward walk from current to goal through
// the edge graph, skipping the cancelled and no_show branches. Every step
// carries its replay-mode effects.
func PlanReplay(current, goal Status) ([]Step, error) {
	if current == goal {
		return nil, nil
	}
	if current.Terminal() {
		return nil, errors.InvalidTransition(string(current), string(goal), "already terminal")
	}

	prev := map[Status]Status{current: current}
	queue := []Status{current}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if s == goal {
			break
		}
		for _, next := range edges[s] {
			if next == Cancelled || next == NoShow {
				continue
			}
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = s
			queue = append(queue, next)
		}
	}
	if _, ok := prev[goal]; !ok {
		return nil, errors.InvalidTransition(string(current), string(goal), "unreachable")
	}

	var rev []Step
	for s := goal; s != current; s = prev[s] {
		from := prev[s]
		rev = append(rev, Step{From: from, To: s, Effects: effectsFor(from, s, ModeReplay)})
	}
	steps := make([]Step, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		steps = append(steps, rev[i])
	}
	return steps, nil
}

// reopenTargets are the statuses an administrative override may restore.
var reopenTargets = map[Status]bool{Booked: true, Confirmed: true}

// Override reopens a terminal appointment. It is the only way out of a
// terminal status and requires a reason.
func Override(current, target Status, reason string) (Step, error) {
	if reason == "" {
		return Step{}, errors.Validation("override reason is required", nil)
	}
	if !current.Terminal() {
		return Step{}, errors.InvalidTransition(string(current), string(target), "override only applies to terminal appointments")
	}
	if !reopenTargets[target] {
		return Step{}, errors.InvalidTransition(string(current), string(target), "override may only reopen to booked or confirmed")
	}
	return Step{From: current, To: target, Effects: []Effect{EffectReleaseResources, EffectMirrorQueue}}, nil
}
