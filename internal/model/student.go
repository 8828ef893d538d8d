package model

import "fmt"

// StudentStatus is the only student attribute seat allocation mutates.
type StudentStatus string

const (
	StudentActive   StudentStatus = "active"
	StudentInactive StudentStatus = "inactive"
)

// ParseStudentStatus validates a stored status value.
func ParseStudentStatus(s string) (StudentStatus, error) {
	switch StudentStatus(s) {
	case StudentActive:
		return StudentActive, nil
	case StudentInactive:
		return StudentInactive, nil
	}
	return "", fmt.Errorf("unknown student status %q", s)
}

// Student is the slice of the student profile this module reads.  Name,
// contact data and routines belong to the profile layer.
type Student struct {
	ID        uint64        `json:"id"`         // students.id
	TrainerID uint64        `json:"trainer_id"` // students.trainer_id
	Status    StudentStatus `json:"status"`     // students.status
}

// IsActive reports whether the student currently occupies capacity.
func (s Student) IsActive() bool { return s.Status == StudentActive }
