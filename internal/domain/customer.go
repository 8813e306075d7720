package domain

import "time"

// Customer is the platform customer behind a session.
type Customer struct {
	ID               string    `json:"id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	AcceptsMarketing bool      `json:"accepts_marketing"`
	DefaultAddressID string    `json:"default_address_id,omitempty"`
	Addresses        []Address `json:"addresses,omitempty"`
}

// Address is a postal address as stored on the platform.
type Address struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Address1  string `json:"address1" validate:"required,max=255"`
	Address2  string `json:"address2,omitempty" validate:"max=255"`
	City      string `json:"city" validate:"required,max=100"`
	Province  string `json:"province" validate:"required,max=100"`
	Zip       string `json:"zip" validate:"required,postcode"`
	Country   string `json:"country" validate:"required,max=100"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,max=20"`
}

// Session is what a successful login returns to the client. Token is the
// signed session token; AccessToken is the platform token it wraps and is
// never serialized.
type Session struct {
	Token       string    `json:"token"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
	Customer    *Customer `json:"customer"`
}

// AccessToken is a platform customer access token.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// CustomerUpdate is a partial profile update. Nil fields are left unchanged.
type CustomerUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Password  *string
}

// NewCustomer is the input of a registration.
type NewCustomer struct {
	FirstName        string
	LastName         string
	Email            string
	Password         string
	Phone            string
	AcceptsMarketing bool
}
