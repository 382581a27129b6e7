package model

import "strings"

// Phase is an agent's lifecycle phase as recorded in its heartbeat.
type Phase string

const (
	PhaseStarting           Phase = "starting"
	PhaseWorking            Phase = "working"
	PhaseIdle               Phase = "idle"
	PhaseWaitingReview      Phase = "waiting_review"
	PhaseAddressingFeedback Phase = "addressing_feedback"
	PhaseExitedSuccess      Phase = "exited:success"
	PhaseExitedError        Phase = "exited:error"
	PhaseExitedTerminated   Phase = "exited:terminated"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// IsTerminal reports whether the phase is one of the exited:* phases.
// No transition leaves a terminal phase.
func (p Phase) IsTerminal() bool {
	return strings.HasPrefix(string(p), "exited:")
}

// IsValid checks whether the phase is a known value.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseStarting, PhaseWorking, PhaseIdle, PhaseWaitingReview,
		PhaseAddressingFeedback, PhaseExitedSuccess, PhaseExitedError,
		PhaseExitedTerminated:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle state machine permits moving
// from p to next:
//
//	starting -> {working | idle}
//	working  -> {idle | waiting_review | addressing_feedback}
//	idle     -> working
//	any non-terminal -> exited:*
//
// Every run enters through starting; an agent that finds nothing claimable
// on its first scan goes straight to idle. Terminal phases have no exits.
func (p Phase) CanTransition(next Phase) bool {
	if p.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	switch p {
	case PhaseStarting:
		return next == PhaseWorking || next == PhaseIdle
	case PhaseWorking:
		return next == PhaseIdle || next == PhaseWaitingReview ||
			next == PhaseAddressingFeedback || next == PhaseWorking
	case PhaseIdle:
		return next == PhaseWorking
	case PhaseWaitingReview:
		return next == PhaseWorking || next == PhaseAddressingFeedback || next == PhaseIdle
	case PhaseAddressingFeedback:
		return next == PhaseWaitingReview || next == PhaseWorking
	}
	return false
}
