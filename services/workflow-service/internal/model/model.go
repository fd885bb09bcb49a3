package model

import (
	"time"

	"github.com/santaihub/santai-server/services/workflow-service/internal/interval"
)

type Role string

const (
	RoleOperator  Role = "operator"
	RoleTherapist Role = "therapist"
	RoleDriver    Role = "driver"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOperator, RoleTherapist, RoleDriver:
		return true
	}
	return false
}

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID   string
	Role Role
}

type PickupUrgency string

const (
	UrgencyNormal PickupUrgency = "normal"
	UrgencyUrgent PickupUrgency = "urgent"
)

func (u PickupUrgency) Valid() bool {
	return u == UrgencyNormal || u == UrgencyUrgent
}

// Appointment is the central workflow entity. Mutated only through the
// engine's transition operations; never physically deleted.
type Appointment struct {
	ID          string
	ClientID    string
	ServiceID   string
	OperatorID  string
	TherapistID string // primary therapist; always a group member
	DriverID    string // empty until a driver is allocated

	Date        time.Time
	StartTime   interval.TimeOfDay
	EndTime     interval.TimeOfDay
	Status      Status
	GroupSize   int
	RequiresCar bool

	GroupConfirmationComplete bool

	TherapistConfirmedAt     *time.Time
	DriverConfirmedAt        *time.Time
	JourneyStartedAt         *time.Time
	ArrivedAt                *time.Time
	DroppedOffAt             *time.Time
	SessionStartedAt         *time.Time
	PaymentInitiatedAt       *time.Time
	ReturnJourneyCompletedAt *time.Time

	PickupRequested   bool
	PickupRequestTime *time.Time
	PickupUrgency     PickupUrgency

	ResponseDeadline time.Time
	AutoCancelledAt  *time.Time

	RejectionReason string
	RejectedBy      string
	RejectedAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Span is the appointment's own interval normalized to absolute instants
// (cross-day when the end clock is at or before the start clock).
func (a Appointment) Span() interval.Span {
	return interval.Normalize(a.Date, a.StartTime, a.EndTime)
}

// TherapistConfirmation is one row per (appointment, therapist), created on
// first confirm and never deleted.
type TherapistConfirmation struct {
	ID            int64
	AppointmentID string
	TherapistID   string
	ConfirmedAt   time.Time
}

// AvailabilityWindow is a user's open interval on a date. End at or before
// start means the window runs past midnight.
type AvailabilityWindow struct {
	ID          string
	UserID      string
	Date        time.Time
	StartTime   interval.TimeOfDay
	EndTime     interval.TimeOfDay
	IsAvailable bool
	CreatedAt   time.Time
}

func (w AvailabilityWindow) Span() interval.Span {
	return interval.Normalize(w.Date, w.StartTime, w.EndTime)
}

// User is the engine's projection of the identity subsystem: just enough to
// authorize steps and run the driver pool. LastAvailableAt is null while a
// driver is engaged and set to "now" when the driver re-enters the pool.
type User struct {
	ID              string
	FullName        string
	Phone           string
	Role            Role
	IsActive        bool
	LastAvailableAt *time.Time
}

type ReviewOutcome string

const (
	ReviewApproved ReviewOutcome = "approved"
	ReviewDenied   ReviewOutcome = "denied"
)

func (o ReviewOutcome) Valid() bool {
	return o == ReviewApproved || o == ReviewDenied
}

// RejectionReview is the operator's recorded decision on a rejected
// appointment: approve re-opens it, deny keeps it cancelled.
type RejectionReview struct {
	ID            int64
	AppointmentID string
	ReviewedBy    string
	Outcome       ReviewOutcome
	Note          string
	ReviewedAt    time.Time
}

// Client and Service are plumbing entities around the workflow core.
type Client struct {
	ID        string
	Name      string
	Phone     string
	Address   string
	Notes     string
	CreatedAt time.Time
}

type Service struct {
	ID              string
	Name            string
	DurationMinutes int
	Price           string
	Description     string
	CreatedAt       time.Time
}
