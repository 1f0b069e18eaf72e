package workflow

// NewActivityMachine builds the activity lifecycle machine positioned at the
// given state.
//
//	draft ──SUBMIT──> processing ──APPROVE──> approved
//	                  processing ──REJECT───> rejected
//	                  processing ──CANCEL───> cancelled
//	                  processing ──ABORT────> aborted ──RESTORE──> processing
//
// Guards that depend on persisted data (cancel's all-steps-pending check,
// approve's last-step check) are evaluated by the engine before firing.
func NewActivityMachine(initial State) StateMachine {
	b := NewBuilder()

	b.Configure(StateDraft).
		Permit(TriggerSubmit, StateProcessing)

	b.Configure(StateProcessing).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerCancel, StateCancelled).
		Permit(TriggerAbort, StateAborted)

	b.Configure(StateAborted).
		Permit(TriggerRestore, StateProcessing)

	return b.Build(initial)
}
