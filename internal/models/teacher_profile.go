package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// TeacherProfile is the read-only projection of a teacher used by scheduling.
type TeacherProfile struct {
	ID              string         `db:"id" json:"id"`
	FullName        string         `db:"full_name" json:"full_name"`
	Timezone        string         `db:"timezone" json:"timezone"`
	AlwaysAvailable bool           `db:"always_available" json:"always_available"`
	Gender          *string        `db:"gender" json:"gender,omitempty"`
	Age             *int           `db:"age" json:"age,omitempty"`
	Subjects        pq.StringArray `db:"subjects" json:"subjects"`
	Status          EntityStatus   `db:"status" json:"status"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the teacher can be scheduled.
func (p TeacherProfile) IsActive() bool {
	return p.Status == StatusActive
}

// Teaches reports whether the teacher lists the subject, ignoring case.
func (p TeacherProfile) Teaches(subject string) bool {
	for _, s := range p.Subjects {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(subject)) {
			return true
		}
	}
	return false
}
