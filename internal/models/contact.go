package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

var studentIDPattern = regexp.MustCompile(`^[A-Z0-9]+$`)
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail reports whether email has a plausible address shape.
// This is a structural check only; the CRM remains the source of
// truth for deliverability.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// CreditBalance holds the four typed credit pools plus the shared
// pool. All fields must stay non-negative; the ledger is the only
// writer.
type CreditBalance struct {
	SJ             int `db:"sj" json:"sj"`
	CS             int `db:"cs" json:"cs"`
	SJMini         int `db:"sjmini" json:"sjmini"`
	MockDiscussion int `db:"mock_discussion" json:"mock_discussion"`
	Shared         int `db:"shared" json:"shared"`
}

// Field returns the value of the named credit field, or 0 for an
// unrecognized name. Callers only ever pass names produced by
// MockType.CreditField or the literal "shared".
func (b CreditBalance) Field(name string) int {
	switch name {
	case "sj":
		return b.SJ
	case "cs":
		return b.CS
	case "sjmini":
		return b.SJMini
	case "mock_discussion":
		return b.MockDiscussion
	case "shared":
		return b.Shared
	}
	return 0
}

// WithField returns a copy of b with the named field set to value.
func (b CreditBalance) WithField(name string, value int) CreditBalance {
	switch name {
	case "sj":
		b.SJ = value
	case "cs":
		b.CS = value
	case "sjmini":
		b.SJMini = value
	case "mock_discussion":
		b.MockDiscussion = value
	case "shared":
		b.Shared = value
	}
	return b
}

// Valid reports whether every credit field is non-negative.
func (b CreditBalance) Valid() bool {
	return b.SJ >= 0 && b.CS >= 0 && b.SJMini >= 0 && b.MockDiscussion >= 0 && b.Shared >= 0
}

// Contact represents a student known to both the CRM and the fast
// store.
type Contact struct {
	UUID      uuid.UUID `db:"uuid" json:"uuid"`
	CRMID     string    `db:"hubspot_id" json:"crm_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Email     string    `db:"email" json:"email"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Credits   CreditBalance
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	SyncedAt  time.Time `db:"synced_at" json:"synced_at"`
}

// FullName joins first and last name with a single space.
func (c *Contact) FullName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// ValidStudentID reports whether id matches the required
// uppercase-alphanumeric student-id format.
func ValidStudentID(id string) bool {
	return id != "" && studentIDPattern.MatchString(id)
}
