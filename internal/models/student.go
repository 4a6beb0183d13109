package models

import "time"

// Belt levels in promotion order, from white to black.
var BeltLevels = []string{
	"White", "Yellow Stripe", "Yellow", "Green Stripe", "Green",
	"Blue Stripe", "Blue", "Red Stripe", "Red", "Black Stripe", "Black",
}

// IsBeltLevel reports whether the name is a known belt level.
func IsBeltLevel(name string) bool {
	for _, b := range BeltLevels {
		if b == name {
			return true
		}
	}
	return false
}

// Student represents a member registered at the school.
type Student struct {
	ID           string    `db:"id" json:"id"`
	FullName     string    `db:"full_name" json:"fullName"`
	Course       string    `db:"course" json:"course"`
	BeltLevel    string    `db:"belt_level" json:"beltLevel"`
	Phone        string    `db:"phone" json:"phone"`
	Email        string    `db:"email" json:"email"`
	GuardianName string    `db:"guardian_name" json:"guardianName"`
	JoinedAt     time.Time `db:"joined_at" json:"joinedAt"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	BeltLevel string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
