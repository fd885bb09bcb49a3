package model

// Status is the closed set of appointment lifecycle states. Forward motion
// follows the happy-path chain below; "rejected" and "auto_cancelled" are the
// only side exits, both reachable from "pending" alone.
type Status string

const (
	StatusPending              Status = "pending"
	StatusTherapistConfirmed   Status = "therapist_confirmed"
	StatusDriverConfirmed      Status = "driver_confirmed"
	StatusInProgress           Status = "in_progress"
	StatusJourneyStarted       Status = "journey_started"
	StatusArrived              Status = "arrived"
	StatusDroppedOff           Status = "dropped_off"
	StatusSessionInProgress    Status = "session_in_progress"
	StatusAwaitingPayment      Status = "awaiting_payment"
	StatusPaymentVerified      Status = "payment_verified"
	StatusCompleted            Status = "completed"
	StatusPickupRequested      Status = "pickup_requested"
	StatusDriverAssignedPickup Status = "driver_assigned_pickup"
	StatusReturnJourney        Status = "return_journey"
	StatusTransportCompleted   Status = "transport_completed"
	StatusRejected             Status = "rejected"
	StatusAutoCancelled        Status = "auto_cancelled"
)

var allStatuses = map[Status]struct{}{
	StatusPending:              {},
	StatusTherapistConfirmed:   {},
	StatusDriverConfirmed:      {},
	StatusInProgress:           {},
	StatusJourneyStarted:       {},
	StatusArrived:              {},
	StatusDroppedOff:           {},
	StatusSessionInProgress:    {},
	StatusAwaitingPayment:      {},
	StatusPaymentVerified:      {},
	StatusCompleted:            {},
	StatusPickupRequested:      {},
	StatusDriverAssignedPickup: {},
	StatusReturnJourney:        {},
	StatusTransportCompleted:   {},
	StatusRejected:             {},
	StatusAutoCancelled:        {},
}

func (s Status) Valid() bool {
	_, ok := allStatuses[s]
	return ok
}

// Terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusTransportCompleted, StatusAutoCancelled:
		return true
	}
	return false
}

// forward is the happy-path transition graph. Values are the set of statuses
// an appointment may move to next, excluding the pending-only side exits.
// Car-free appointments skip the driver chain, hence the branches out of
// therapist_confirmed and in_progress; the engine enforces that the shortcut
// is only taken when requires_car is false.
var forward = map[Status][]Status{
	StatusPending:              {StatusTherapistConfirmed},
	StatusTherapistConfirmed:   {StatusDriverConfirmed, StatusInProgress},
	StatusDriverConfirmed:      {StatusInProgress},
	StatusInProgress:           {StatusJourneyStarted, StatusSessionInProgress},
	StatusJourneyStarted:       {StatusArrived},
	StatusArrived:              {StatusDroppedOff},
	StatusDroppedOff:           {StatusSessionInProgress},
	StatusSessionInProgress:    {StatusAwaitingPayment},
	StatusAwaitingPayment:      {StatusPaymentVerified},
	StatusPaymentVerified:      {StatusCompleted},
	StatusCompleted:            {StatusPickupRequested},
	StatusPickupRequested:      {StatusDriverAssignedPickup},
	StatusDriverAssignedPickup: {StatusReturnJourney},
	StatusReturnJourney:        {StatusTransportCompleted},
}

// CanTransition reports whether from -> to is a legal forward step or one of
// the pending-only side exits.
func CanTransition(from, to Status) bool {
	if from == StatusPending && (to == StatusRejected || to == StatusAutoCancelled) {
		return true
	}
	// Operator review may re-open a rejected appointment.
	if from == StatusRejected && to == StatusPending {
		return true
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}
