package model

import "time"

// Visitor is a person registered with an organisation.  QRCode is the
// opaque payload printed on the visitor's card; kiosks look visitors up
// by it.
type Visitor struct {
    ID             uint64    `json:"id"`
    OrganisationID uint64    `json:"-"`
    Name           string    `json:"name"`
    Email          *string   `json:"email,omitempty"`
    Phone          *string   `json:"phone_number,omitempty"`
    Gender         *string   `json:"gender,omitempty"`
    BirthYear      *int      `json:"birth_year,omitempty"`
    EmailConsent   bool      `json:"email_consent"`
    QRCode         string    `json:"qr_code"`
    CreatedAt      time.Time `json:"created_at"`
}
