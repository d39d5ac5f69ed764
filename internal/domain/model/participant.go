// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// Participant is one racer on an event roster.
type Participant struct {
	ID        string    // opaque id assigned by the store
	Name      string    // display first name
	Surname   string    // display surname
	Phone     string    // E.164 WhatsApp number, required
	Email     string    // optional contact email
	Company   string    // optional
	Score     int64     // best time in hundredths of a second, lower is better
	Attempts  int       // score submissions, 1 on registration
	Seq       int64     // arrival order assigned by the store, breaks score ties
	CreatedAt time.Time // registration time
	UpdatedAt time.Time // last write
}

// FullName joins name and surname for display.
func (p Participant) FullName() string {
	return strings.TrimSpace(p.Name + " " + p.Surname)
}

// Observation is one roster emission from the store, in store order.
type Observation struct {
	Seq     uint64        // monotonically increasing emission counter
	Players []Participant // ordered ascending by score, ties in arrival order
	At      time.Time
}

// ValidatePhone checks E.164 format and, when prefix is set, the country prefix.
func ValidatePhone(phone, prefix string) error {
	if !e164.MatchString(phone) {
		return fmt.Errorf("%w: phone %q is not in E.164 format", ErrValidation, phone)
	}
	if prefix != "" && !strings.HasPrefix(phone, prefix) {
		return fmt.Errorf("%w: phone must start with the country code %s", ErrValidation, prefix)
	}
	return nil
}

// ValidateParticipant checks the fields a registration must carry.
// Name and surname are trimmed in place.
func ValidateParticipant(p *Participant, phonePrefix string) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Surname = strings.TrimSpace(p.Surname)
	p.Email = strings.TrimSpace(p.Email)
	p.Company = strings.TrimSpace(p.Company)
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if p.Surname == "" {
		return fmt.Errorf("%w: surname is required", ErrValidation)
	}
	if p.Score < 0 {
		return fmt.Errorf("%w: score must not be negative", ErrValidation)
	}
	if p.Email != "" && !strings.Contains(p.Email, "@") {
		return fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	return ValidatePhone(p.Phone, phonePrefix)
}
