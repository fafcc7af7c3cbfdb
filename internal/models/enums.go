package models

// MockType identifies the kind of mock examination a session runs.
type MockType string

const (
	MockTypeSituationalJudgment MockType = "Situational Judgment"
	MockTypeClinicalSkills      MockType = "Clinical Skills"
	MockTypeMiniMock            MockType = "Mini-mock"
	MockTypeMockDiscussion      MockType = "Mock Discussion"
)

// Valid reports whether m is one of the four recognized mock types.
func (m MockType) Valid() bool {
	switch m {
	case MockTypeSituationalJudgment, MockTypeClinicalSkills, MockTypeMiniMock, MockTypeMockDiscussion:
		return true
	}
	return false
}

// CreditField returns the credit balance field that a mock type is
// primarily billed against. It does not account for shared-pool
// fall-through; see the credit ledger for that.
func (m MockType) CreditField() string {
	switch m {
	case MockTypeSituationalJudgment:
		return "sj"
	case MockTypeClinicalSkills:
		return "cs"
	case MockTypeMiniMock:
		return "sjmini"
	case MockTypeMockDiscussion:
		return "mock_discussion"
	}
	return ""
}

// SharesPool reports whether m may fall through to the shared credit
// pool when its specific pool is exhausted. Mini-mock and Mock
// Discussion never touch the shared pool.
func (m MockType) SharesPool() bool {
	return m == MockTypeSituationalJudgment || m == MockTypeClinicalSkills
}

// SessionStatus mirrors the CRM's stringly-typed tri-state for
// sessions: "true", "false" or "scheduled". Kept as a string type
// rather than an int enum so that round-tripping through the CRM
// never needs a translation table.
type SessionStatus string

const (
	SessionActive    SessionStatus = "true"
	SessionInactive  SessionStatus = "false"
	SessionScheduled SessionStatus = "scheduled"
)

// CanTransitionTo reports whether the session status transition from
// the receiver to target is permitted: scheduled -> true, true <->
// false, scheduled -> false (admin override), true -> scheduled only
// when paired with a future activation time (checked by the caller,
// not here).
func (s SessionStatus) CanTransitionTo(target SessionStatus) bool {
	if s == target {
		return true
	}
	switch s {
	case SessionScheduled:
		return target == SessionActive || target == SessionInactive
	case SessionActive:
		return target == SessionInactive || target == SessionScheduled
	case SessionInactive:
		return target == SessionActive
	}
	return false
}

// Location is the enumerated set of physical/virtual exam locations.
type Location string

const (
	LocationToronto    Location = "Toronto"
	LocationVancouver  Location = "Vancouver"
	LocationCalgary    Location = "Calgary"
	LocationOnlineZoom Location = "Online"
)

// BookingStatus mirrors the CRM's stringly-typed booking lifecycle.
type BookingStatus string

const (
	BookingActive    BookingStatus = "Active"
	BookingCancelled BookingStatus = "Cancelled"
	BookingCompleted BookingStatus = "Completed"
)

// IsTerminal reports whether the status is one of the two states the
// booking can never transition out of.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingCancelled || s == BookingCompleted
}

// Attendance records whether a completed booking's student showed up.
type Attendance string

const (
	AttendanceUnset Attendance = ""
	AttendanceYes   Attendance = "Yes"
	AttendanceNo    Attendance = "No"
)
