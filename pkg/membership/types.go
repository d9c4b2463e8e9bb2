package membership

import (
	"fmt"
	"time"
)

// Role is a user's role on a cookbook or recipe
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleEditor Role = "EDITOR"
	RoleViewer Role = "VIEWER"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Assignable reports whether r may be granted through member mutations.
// OWNER is only ever assigned when the entity is created.
func (r Role) Assignable() bool {
	return r == RoleEditor || r == RoleViewer
}

// Kind tags which entity a membership refers to
type Kind string

const (
	KindCookbook Kind = "cookbook"
	KindRecipe   Kind = "recipe"
)

// ParseKind validates a kind tag
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCookbook, KindRecipe:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// Membership is one row of users_on_cookbooks or users_on_recipes
type Membership struct {
	UserID   int64     `json:"userId"`
	EntityID int64     `json:"entityId"`
	Role     Role      `json:"role"`
	AddedBy  *int64    `json:"addedBy,omitempty"`
	AddedAt  time.Time `json:"addedAt"`
}

// Member is a membership joined with the member's public profile
type Member struct {
	UserID    int64     `json:"userId"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	Role      Role      `json:"role"`
	AddedAt   time.Time `json:"addedAt"`
}

// MemberInput is one entry of an add or edit batch
type MemberInput struct {
	UserID int64 `json:"userId"`
	Role   Role  `json:"role"`
}
