package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

type BookAppointmentRequest struct {
	Patient         Ref       `json:"patient"`
	Provider        Ref       `json:"provider"`
	AppointmentType Ref       `json:"appointmentType"`
	Operatory       *Ref      `json:"operatory,omitempty"`
	ScheduledStart  time.Time `json:"scheduledStart"`
	Notes           string    `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status             string `json:"status"`
	CancellationReason string `json:"cancellationReason,omitempty"`
}

type RescheduleAppointmentRequest struct {
	ScheduledStart time.Time `json:"scheduledStart"`
	Reason         string    `json:"reason,omitempty"`
}

type UpdateNotesRequest struct {
	Notes string `json:"notes"`
}

type CreateWaitlistRequest struct {
	Patient         Ref        `json:"patient"`
	Provider        *Ref       `json:"provider,omitempty"`
	AppointmentType Ref        `json:"appointmentType"`
	PreferredDates  []string   `json:"preferredDates,omitempty"`
	PreferredTimes  []string   `json:"preferredTimes,omitempty"`
	Priority        string     `json:"priority,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

type UpdateWaitlistRequest struct {
	Priority       *string    `json:"priority,omitempty"`
	Status         *string    `json:"status,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	PreferredDates []string   `json:"preferredDates,omitempty"`
	PreferredTimes []string   `json:"preferredTimes,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

type PromoteWaitlistRequest struct {
	Provider       *Ref      `json:"provider,omitempty"`
	Operatory      *Ref      `json:"operatory,omitempty"`
	ScheduledStart time.Time `json:"scheduledStart"`
}

type CreateOperatoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateOperatoryRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

type AppointmentTypeResponse struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Duration           int       `json:"duration"`
	Price              float64   `json:"price"`
	Category           string    `json:"category,omitempty"`
	Color              string    `json:"color,omitempty"`
	AllowOnlineBooking bool      `json:"allowOnlineBooking"`
}

type SlotResponse struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	ProviderID   uuid.UUID `json:"providerId"`
	ProviderName string    `json:"providerName,omitempty"`
	Available    bool      `json:"available"`
}

type RescheduleRecordResponse struct {
	OldDate      time.Time `json:"oldDate"`
	NewDate      time.Time `json:"newDate"`
	Reason       string    `json:"reason,omitempty"`
	RescheduleBy uuid.UUID `json:"rescheduleBy"`
	Timestamp    time.Time `json:"timestamp"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID                  `json:"id"`
	PatientID          uuid.UUID                  `json:"patientId"`
	ProviderID         uuid.UUID                  `json:"providerId"`
	AppointmentTypeID  uuid.UUID                  `json:"appointmentTypeId"`
	OperatoryID        *uuid.UUID                 `json:"operatoryId,omitempty"`
	ScheduledStart     time.Time                  `json:"scheduledStart"`
	ScheduledEnd       time.Time                  `json:"scheduledEnd"`
	Status             string                     `json:"status"`
	Notes              string                     `json:"notes,omitempty"`
	CancellationReason string                     `json:"cancellationReason,omitempty"`
	CheckedInAt        *time.Time                 `json:"checkedInAt,omitempty"`
	ActualStart        *time.Time                 `json:"actualStart,omitempty"`
	ActualEnd          *time.Time                 `json:"actualEnd,omitempty"`
	ActualDuration     *int                       `json:"actualDuration,omitempty"`
	CompletedAt        *time.Time                 `json:"completedAt,omitempty"`
	CancelledAt        *time.Time                 `json:"cancelledAt,omitempty"`
	RescheduleHistory  []RescheduleRecordResponse `json:"rescheduleHistory,omitempty"`
	Version            int                        `json:"version"`
	CreatedAt          time.Time                  `json:"createdAt"`
	UpdatedAt          time.Time                  `json:"updatedAt"`
}

type WaitlistEntryResponse struct {
	ID                uuid.UUID  `json:"id"`
	PatientID         uuid.UUID  `json:"patientId"`
	ProviderID        *uuid.UUID `json:"providerId,omitempty"`
	AppointmentTypeID uuid.UUID  `json:"appointmentTypeId"`
	PreferredDates    []string   `json:"preferredDates"`
	PreferredTimes    []string   `json:"preferredTimes"`
	Priority          string     `json:"priority"`
	Status            string     `json:"status"`
	Notes             string     `json:"notes,omitempty"`
	AppointmentID     *uuid.UUID `json:"appointmentId,omitempty"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type OperatoryResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type PromoteWaitlistResponse struct {
	Appointment AppointmentResponse   `json:"appointment"`
	Entry       WaitlistEntryResponse `json:"entry"`
}

// ListResponse wraps a page of results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func toAppointmentTypeResponse(t scheduling.AppointmentType) AppointmentTypeResponse {
	return AppointmentTypeResponse{
		ID:                 t.ID,
		Name:               t.Name,
		Duration:           t.Duration,
		Price:              float64(t.PriceCents) / 100,
		Category:           t.Category,
		Color:              t.Color,
		AllowOnlineBooking: t.AllowOnlineBooking,
	}
}

func toSlotResponse(s scheduling.Slot) SlotResponse {
	return SlotResponse{
		Start:        s.Start,
		End:          s.End,
		ProviderID:   s.ProviderID,
		ProviderName: s.ProviderName,
		Available:    s.Available,
	}
}

func toAppointmentResponse(a scheduling.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		ProviderID:         a.ProviderID,
		AppointmentTypeID:  a.AppointmentTypeID,
		OperatoryID:        a.OperatoryID,
		ScheduledStart:     a.ScheduledStart,
		ScheduledEnd:       a.ScheduledEnd,
		Status:             string(a.Status),
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		CheckedInAt:        a.CheckedInAt,
		ActualStart:        a.ActualStart,
		ActualEnd:          a.ActualEnd,
		CompletedAt:        a.CompletedAt,
		CancelledAt:        a.CancelledAt,
		Version:            a.Version,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
	if d, ok := a.ActualDuration(); ok {
		resp.ActualDuration = &d
	}
	for _, h := range a.RescheduleHistory {
		resp.RescheduleHistory = append(resp.RescheduleHistory, RescheduleRecordResponse{
			OldDate:      h.OldDate,
			NewDate:      h.NewDate,
			Reason:       h.Reason,
			RescheduleBy: h.RescheduleBy,
			Timestamp:    h.Timestamp,
		})
	}
	return resp
}

func toWaitlistEntryResponse(e scheduling.WaitlistEntry) WaitlistEntryResponse {
	resp := WaitlistEntryResponse{
		ID:                e.ID,
		PatientID:         e.PatientID,
		ProviderID:        e.ProviderID,
		AppointmentTypeID: e.AppointmentTypeID,
		PreferredDates:    make([]string, 0, len(e.PreferredDates)),
		PreferredTimes:    make([]string, 0, len(e.PreferredTimes)),
		Priority:          string(e.Priority),
		Status:            string(e.Status),
		Notes:             e.Notes,
		AppointmentID:     e.AppointmentID,
		ExpiresAt:         e.ExpiresAt,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
	for _, d := range e.PreferredDates {
		resp.PreferredDates = append(resp.PreferredDates, d.String())
	}
	for _, t := range e.PreferredTimes {
		resp.PreferredTimes = append(resp.PreferredTimes, t.String())
	}
	return resp
}

func toOperatoryResponse(o scheduling.Operatory) OperatoryResponse {
	return OperatoryResponse{
		ID:          o.ID,
		Name:        o.Name,
		Description: o.Description,
		IsActive:    o.IsActive,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func mapSlice[S, T any](in []S, f func(S) T) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
