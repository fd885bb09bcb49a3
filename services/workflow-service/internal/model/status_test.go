package model

import "testing"

func TestHappyPathChain(t *testing.T) {
	chain := []Status{
		StatusPending,
		StatusTherapistConfirmed,
		StatusDriverConfirmed,
		StatusInProgress,
		StatusJourneyStarted,
		StatusArrived,
		StatusDroppedOff,
		StatusSessionInProgress,
		StatusAwaitingPayment,
		StatusPaymentVerified,
		StatusCompleted,
		StatusPickupRequested,
		StatusDriverAssignedPickup,
		StatusReturnJourney,
		StatusTransportCompleted,
	}
	for i := 0; i < len(chain)-1; i++ {
		if !CanTransition(chain[i], chain[i+1]) {
			t.Fatalf("expected %s -> %s to be legal", chain[i], chain[i+1])
		}
	}
}

func TestCarFreeShortcuts(t *testing.T) {
	if !CanTransition(StatusTherapistConfirmed, StatusInProgress) {
		t.Fatal("expected therapist_confirmed -> in_progress (car-free start)")
	}
	if !CanTransition(StatusInProgress, StatusSessionInProgress) {
		t.Fatal("expected in_progress -> session_in_progress (car-free session)")
	}
}

func TestSideExitsOnlyFromPending(t *testing.T) {
	if !CanTransition(StatusPending, StatusRejected) {
		t.Fatal("expected pending -> rejected")
	}
	if !CanTransition(StatusPending, StatusAutoCancelled) {
		t.Fatal("expected pending -> auto_cancelled")
	}
	for s := range allStatuses {
		if s == StatusPending {
			continue
		}
		if CanTransition(s, StatusRejected) {
			t.Fatalf("unexpected %s -> rejected", s)
		}
		if CanTransition(s, StatusAutoCancelled) {
			t.Fatalf("unexpected %s -> auto_cancelled", s)
		}
	}
}

func TestReviewReopens(t *testing.T) {
	if !CanTransition(StatusRejected, StatusPending) {
		t.Fatal("expected rejected -> pending via operator review")
	}
	if CanTransition(StatusAutoCancelled, StatusPending) {
		t.Fatal("auto_cancelled must be terminal")
	}
}

func TestNoSkippingForward(t *testing.T) {
	cases := [][2]Status{
		{StatusPending, StatusDriverConfirmed},
		{StatusPending, StatusInProgress},
		{StatusDriverConfirmed, StatusJourneyStarted},
		{StatusJourneyStarted, StatusDroppedOff},
		{StatusSessionInProgress, StatusPaymentVerified},
		{StatusCompleted, StatusDriverAssignedPickup},
		{StatusTransportCompleted, StatusPending},
	}
	for _, c := range cases {
		if CanTransition(c[0], c[1]) {
			t.Fatalf("unexpected legal transition %s -> %s", c[0], c[1])
		}
	}
}

func TestNoBackwardTransitions(t *testing.T) {
	cases := [][2]Status{
		{StatusTherapistConfirmed, StatusPending},
		{StatusArrived, StatusJourneyStarted},
		{StatusCompleted, StatusSessionInProgress},
	}
	for _, c := range cases {
		if CanTransition(c[0], c[1]) {
			t.Fatalf("unexpected legal transition %s -> %s", c[0], c[1])
		}
	}
}

func TestTerminal(t *testing.T) {
	if !StatusTransportCompleted.Terminal() {
		t.Fatal("transport_completed should be terminal")
	}
	if !StatusAutoCancelled.Terminal() {
		t.Fatal("auto_cancelled should be terminal")
	}
	if StatusRejected.Terminal() {
		t.Fatal("rejected is reviewable, not terminal")
	}
}

func TestRoleAndEnumsValid(t *testing.T) {
	for _, r := range []Role{RoleOperator, RoleTherapist, RoleDriver} {
		if !r.Valid() {
			t.Fatalf("role %s should be valid", r)
		}
	}
	if Role("admin").Valid() {
		t.Fatal("unknown role accepted")
	}
	if Status("cancelled").Valid() {
		t.Fatal("unknown status accepted")
	}
	if !UrgencyUrgent.Valid() || PickupUrgency("asap").Valid() {
		t.Fatal("pickup urgency validation broken")
	}
	if !ReviewApproved.Valid() || ReviewOutcome("maybe").Valid() {
		t.Fatal("review outcome validation broken")
	}
}
