package domain

import "time"

// Credential is the durable copy of a session. Every field except Token is
// optional because the three keys are stored independently.
type Credential struct {
	Token     string
	User      *User
	ExpiresAt *time.Time
}

func (c Credential) HasToken() bool {
	return c.Token != ""
}
