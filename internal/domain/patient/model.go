package patient

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeceased Status = "deceased"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDeceased:
		return true
	}
	return false
}

type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderOther   Gender = "other"
	GenderUnknown Gender = "unknown"
)

// Event types published after each successful write.
const (
	EventCreated = "patient.created"
	EventUpdated = "patient.updated"
	EventDeleted = "patient.deleted"
)

// Address is stored as a nullable column group; either every field is set or
// the whole address is absent.
type Address struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

type EmergencyContact struct {
	Name         string
	Relationship string
	PhoneNumber  string
}

// Patient is the persisted record.
type Patient struct {
	ID                  uuid.UUID
	FirstName           string
	LastName            string
	DateOfBirth         time.Time
	Gender              *Gender
	Email               *string
	PhoneNumber         *string
	Address             *Address
	EmergencyContact    *EmergencyContact
	MedicalRecordNumber string
	Status              Status
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Clone returns a deep copy so cached values can't be mutated by callers.
func (p *Patient) Clone() *Patient {
	if p == nil {
		return nil
	}
	c := *p
	if p.Gender != nil {
		g := *p.Gender
		c.Gender = &g
	}
	if p.Email != nil {
		e := *p.Email
		c.Email = &e
	}
	if p.PhoneNumber != nil {
		ph := *p.PhoneNumber
		c.PhoneNumber = &ph
	}
	if p.Address != nil {
		a := *p.Address
		c.Address = &a
	}
	if p.EmergencyContact != nil {
		ec := *p.EmergencyContact
		c.EmergencyContact = &ec
	}
	return &c
}

// SearchFilter holds the optional search predicates. Set fields are ANDed.
type SearchFilter struct {
	Query     string
	Name      string
	FirstName string
	LastName  string
	Email     string
	MRN       string
	Status    Status
}

func (f SearchFilter) IsEmpty() bool {
	return f == SearchFilter{}
}
