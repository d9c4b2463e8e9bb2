// Package users owns local user accounts: resolving an SSO profile to a
// user, profile lookup, search and account deletion.
package users

import "time"

// User is a local account keyed by email
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	FullName  string    `json:"fullName"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary is the public view of a user embedded in member lists and search results
type Summary struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Summary returns the public view of u
func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Email: u.Email, FullName: u.FullName, AvatarURL: u.AvatarURL}
}

// OrphanedImage is an image left behind by an entity removed together with
// its only owner
type OrphanedImage struct {
	Path   string
	Public bool
}
