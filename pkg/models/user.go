package models

import "time"

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"-"`
	CreatedAt time.Time `json:"-"`

	Credentials []Credential `json:"credentials"`
}

// Credential holds the externally shareable identifiers of a linked account,
// such as a chat handle. Secrets are never stored here.
type Credential struct {
	UserID      string `json:"-"`
	Provider    string `json:"provider"`
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name,omitempty"`
}
