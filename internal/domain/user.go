package domain

import "strings"

type User struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

// DisplayName falls back to the phone number for users who never set a name.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.PhoneNumber
}
