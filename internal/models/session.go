package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a scheduled instance of a mock exam at a location (the
// CRM's "Mock Exam" object).
type Session struct {
	UUID                        uuid.UUID     `db:"uuid" json:"uuid"`
	CRMID                       string        `db:"hubspot_id" json:"crm_id"`
	MockType                    MockType      `db:"mock_type" json:"mock_type"`
	ExamDate                    time.Time     `db:"exam_date" json:"exam_date"`
	StartTime                   string        `db:"start_time" json:"start_time"`
	EndTime                     string        `db:"end_time" json:"end_time"`
	Location                    Location      `db:"location" json:"location"`
	Capacity                    int           `db:"capacity" json:"capacity"`
	TotalBookings               int           `db:"total_bookings" json:"total_bookings"`
	IsActive                    SessionStatus `db:"is_active" json:"is_active"`
	ScheduledActivationDatetime *time.Time    `db:"scheduled_activation_datetime" json:"scheduled_activation_datetime,omitempty"`
	CreatedAt                   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt                   time.Time     `db:"updated_at" json:"updated_at"`
	SyncedAt                    time.Time     `db:"synced_at" json:"synced_at"`
}

// HasCapacity reports whether the session can accept one more
// booking. Only meaningful when read inside the session lock; outside
// of it the result is advisory.
func (s *Session) HasCapacity() bool {
	return s.TotalBookings < s.Capacity
}

// ValidTimeRange reports whether StartTime/EndTime are HH:MM 24h
// strings with EndTime strictly after StartTime.
func (s *Session) ValidTimeRange() bool {
	start, err := time.Parse("15:04", s.StartTime)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", s.EndTime)
	if err != nil {
		return false
	}
	return end.After(start)
}

// RequiresActivationDatetime reports whether the current status
// demands a non-nil, future ScheduledActivationDatetime.
func (s *Session) RequiresActivationDatetime() bool {
	return s.IsActive == SessionScheduled
}

// SessionFilter is the enumerated option set for searching sessions.
type SessionFilter struct {
	Page           int
	Limit          int
	SortBy         string
	SortOrder      string
	FilterLocation Location
	FilterMockType MockType
	FilterStatus   string // all|active|inactive|scheduled
	FilterDateFrom *time.Time
	FilterDateTo   *time.Time
}

var sessionSortFields = map[string]bool{
	"exam_date": true, "start_time": true, "capacity": true,
	"total_bookings": true, "location": true, "mock_type": true,
	"is_active": true, "created_at": true, "updated_at": true,
}

// Normalize clamps and defaults the filter: limit<=100, sort_by and
// sort_order restricted to the recognized sets.
func (f *SessionFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if !sessionSortFields[f.SortBy] {
		f.SortBy = "exam_date"
	}
	if f.SortOrder != "asc" && f.SortOrder != "desc" {
		f.SortOrder = "asc"
	}
	if f.FilterStatus == "" {
		f.FilterStatus = "all"
	}
}

// Page is a generic paginated result, grounded on the teacher's
// pagination.Response shape.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPage builds a Page, computing TotalPages the way the teacher's
// pagination.NewMeta does.
func NewPage[T any](items []T, page, limit, total int) Page[T] {
	totalPages := 1
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
		if totalPages < 1 {
			totalPages = 1
		}
	}
	return Page[T]{Items: items, Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}
