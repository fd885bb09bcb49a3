package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/santaihub/santai-server/services/workflow-service/internal/interval"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
	"github.com/santaihub/santai-server/services/workflow-service/internal/workflow"
)

type AppointmentHandler struct {
	engine *workflow.Engine
	logger *slog.Logger
}

func NewAppointmentHandler(engine *workflow.Engine, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{engine: engine, logger: logger}
}

type createAppointmentRequest struct {
	ClientID     string   `json:"client_id"`
	ServiceID    string   `json:"service_id"`
	TherapistIDs []string `json:"therapist_ids"`
	Date         string   `json:"date"`       // 2006-01-02
	StartTime    string   `json:"start_time"` // 15:04
	EndTime      string   `json:"end_time"`
	RequiresCar  bool     `json:"requires_car"`
	// ResponseDeadline is RFC 3339; omitted means the server default TTL.
	ResponseDeadline string `json:"response_deadline,omitempty"`
}

type appointmentActionRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type appointmentItem struct {
	ID          string `json:"id"`
	ClientID    string `json:"client_id"`
	ServiceID   string `json:"service_id"`
	OperatorID  string `json:"operator_id"`
	TherapistID string `json:"therapist_id"`
	DriverID    string `json:"driver_id,omitempty"`

	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Status      string `json:"status"`
	GroupSize   int    `json:"group_size"`
	RequiresCar bool   `json:"requires_car"`

	GroupConfirmationComplete bool `json:"group_confirmation_complete"`

	TherapistConfirmedAt     string `json:"therapist_confirmed_at,omitempty"`
	DriverConfirmedAt        string `json:"driver_confirmed_at,omitempty"`
	JourneyStartedAt         string `json:"journey_started_at,omitempty"`
	ArrivedAt                string `json:"arrived_at,omitempty"`
	DroppedOffAt             string `json:"dropped_off_at,omitempty"`
	SessionStartedAt         string `json:"session_started_at,omitempty"`
	PaymentInitiatedAt       string `json:"payment_initiated_at,omitempty"`
	ReturnJourneyCompletedAt string `json:"return_journey_completed_at,omitempty"`

	PickupRequested   bool   `json:"pickup_requested"`
	PickupRequestTime string `json:"pickup_request_time,omitempty"`
	PickupUrgency     string `json:"pickup_urgency,omitempty"`

	ResponseDeadline string `json:"response_deadline"`
	AutoCancelledAt  string `json:"auto_cancelled_at,omitempty"`

	RejectionReason string `json:"rejection_reason,omitempty"`
	RejectedBy      string `json:"rejected_by,omitempty"`
	RejectedAt      string `json:"rejected_at,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type appointmentDetailResponse struct {
	appointmentItem
	TherapistIDs  []string           `json:"therapist_ids"`
	Confirmations []confirmationItem `json:"confirmations"`
	Reviews       []reviewItem       `json:"reviews,omitempty"`
}

type confirmationItem struct {
	TherapistID string `json:"therapist_id"`
	ConfirmedAt string `json:"confirmed_at"`
}

type reviewItem struct {
	ReviewedBy string `json:"reviewed_by"`
	Outcome    string `json:"outcome"`
	Note       string `json:"note,omitempty"`
	ReviewedAt string `json:"reviewed_at"`
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	return appointmentItem{
		ID:          a.ID,
		ClientID:    a.ClientID,
		ServiceID:   a.ServiceID,
		OperatorID:  a.OperatorID,
		TherapistID: a.TherapistID,
		DriverID:    a.DriverID,

		Date:        a.Date.Format("2006-01-02"),
		StartTime:   a.StartTime.String(),
		EndTime:     a.EndTime.String(),
		Status:      string(a.Status),
		GroupSize:   a.GroupSize,
		RequiresCar: a.RequiresCar,

		GroupConfirmationComplete: a.GroupConfirmationComplete,

		TherapistConfirmedAt:     fmtTimePtr(a.TherapistConfirmedAt),
		DriverConfirmedAt:        fmtTimePtr(a.DriverConfirmedAt),
		JourneyStartedAt:         fmtTimePtr(a.JourneyStartedAt),
		ArrivedAt:                fmtTimePtr(a.ArrivedAt),
		DroppedOffAt:             fmtTimePtr(a.DroppedOffAt),
		SessionStartedAt:         fmtTimePtr(a.SessionStartedAt),
		PaymentInitiatedAt:       fmtTimePtr(a.PaymentInitiatedAt),
		ReturnJourneyCompletedAt: fmtTimePtr(a.ReturnJourneyCompletedAt),

		PickupRequested:   a.PickupRequested,
		PickupRequestTime: fmtTimePtr(a.PickupRequestTime),
		PickupUrgency:     string(a.PickupUrgency),

		ResponseDeadline: a.ResponseDeadline.Format(time.RFC3339),
		AutoCancelledAt:  fmtTimePtr(a.AutoCancelledAt),

		RejectionReason: a.RejectionReason,
		RejectedBy:      a.RejectedBy,
		RejectedAt:      fmtTimePtr(a.RejectedAt),

		CreatedAt: a.CreatedAt.Format(time.RFC3339),
		UpdatedAt: a.UpdatedAt.Format(time.RFC3339),
	}
}

func fmtTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Appointments serves the collection: POST creates, GET with ?id= returns one
// appointment with its confirmations, GET without lists.
func (h *AppointmentHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
			h.get(w, r, id)
			return
		}
		h.list(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AppointmentHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req createAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	start, err := interval.ParseClock(req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := interval.ParseClock(req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}
	var deadline time.Time
	if req.ResponseDeadline != "" {
		deadline, err = time.Parse(time.RFC3339, req.ResponseDeadline)
		if err != nil {
			http.Error(w, "invalid response_deadline", http.StatusBadRequest)
			return
		}
	}

	a, err := h.engine.CreateAppointment(r.Context(), actor, workflow.CreateAppointmentInput{
		ClientID:         strings.TrimSpace(req.ClientID),
		ServiceID:        strings.TrimSpace(req.ServiceID),
		TherapistIDs:     req.TherapistIDs,
		Date:             date,
		Start:            start,
		End:              end,
		RequiresCar:      req.RequiresCar,
		ResponseDeadline: deadline,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentItem(a))
}

func (h *AppointmentHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	detail, err := h.engine.GetAppointment(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := appointmentDetailResponse{
		appointmentItem: toAppointmentItem(detail.Appointment),
		TherapistIDs:    detail.TherapistIDs,
	}
	for _, c := range detail.Confirmations {
		resp.Confirmations = append(resp.Confirmations, confirmationItem{
			TherapistID: c.TherapistID,
			ConfirmedAt: c.ConfirmedAt.Format(time.RFC3339),
		})
	}
	for _, rev := range detail.Reviews {
		resp.Reviews = append(resp.Reviews, reviewItem{
			ReviewedBy: rev.ReviewedBy,
			Outcome:    string(rev.Outcome),
			Note:       rev.Note,
			ReviewedAt: rev.ReviewedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AppointmentHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := model.Status(strings.TrimSpace(q.Get("status")))

	var datePtr *time.Time
	if d := strings.TrimSpace(q.Get("date")); d != "" {
		date, err := time.Parse("2006-01-02", d)
		if err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		datePtr = &date
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	appts, err := h.engine.ListAppointments(r.Context(), status, datePtr, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

// step is the shared shape of every single-appointment transition endpoint.
func (h *AppointmentHandler) step(w http.ResponseWriter, r *http.Request, fn func(context.Context, model.Actor, string) (model.Appointment, error)) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req appointmentActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "missing appointment_id", http.StatusBadRequest)
		return
	}
	a, err := fn(r.Context(), actor, req.AppointmentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(a))
}

func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.TherapistConfirm)
}

func (h *AppointmentHandler) DriverConfirm(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.DriverConfirm)
}

func (h *AppointmentHandler) AssignDriver(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.AssignDriver)
}

func (h *AppointmentHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.Start)
}

func (h *AppointmentHandler) StartJourney(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.StartJourney)
}

func (h *AppointmentHandler) Arrive(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.Arrive)
}

func (h *AppointmentHandler) DropOff(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.DropOff)
}

func (h *AppointmentHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.StartSession)
}

func (h *AppointmentHandler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.RequestPayment)
}

func (h *AppointmentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.VerifyPayment)
}

func (h *AppointmentHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.CompleteSession)
}

func (h *AppointmentHandler) AssignPickupDriver(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.AssignPickupDriver)
}

func (h *AppointmentHandler) StartReturnJourney(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.StartReturnJourney)
}

func (h *AppointmentHandler) CompleteReturnJourney(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.engine.CompleteReturnJourney)
}

type requestPickupRequest struct {
	AppointmentID string `json:"appointment_id"`
	Urgency       string `json:"urgency,omitempty"`
}

func (h *AppointmentHandler) RequestPickup(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req requestPickupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.engine.RequestPickup(r.Context(), actor, strings.TrimSpace(req.AppointmentID), model.PickupUrgency(req.Urgency))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(a))
}

type rejectRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *AppointmentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req rejectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.engine.Reject(r.Context(), actor, strings.TrimSpace(req.AppointmentID), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(a))
}

type reviewRequest struct {
	AppointmentID string `json:"appointment_id"`
	Outcome       string `json:"outcome"`
	Note          string `json:"note,omitempty"`
}

func (h *AppointmentHandler) Review(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.engine.ReviewRejection(r.Context(), actor, strings.TrimSpace(req.AppointmentID), model.ReviewOutcome(req.Outcome), req.Note)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(a))
}
