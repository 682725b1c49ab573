package users

import "strings"

type User struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Emails []string `json:"emails"`
}

// HasEmail reports whether email is one of the user's addresses. Addresses
// compare case-insensitively.
func (u *User) HasEmail(email string) bool {
	for _, e := range u.Emails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}
