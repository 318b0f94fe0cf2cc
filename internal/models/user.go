package models

import (
	"time"

	"gorm.io/datatypes"
)

// Credential is the identity-provider record used to authenticate a principal.
type Credential struct {
	UID          string    `gorm:"primaryKey;size:64" json:"uid"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	DisplayName  string    `gorm:"size:255" json:"display_name"`
	PhotoURL     string    `gorm:"size:512" json:"photo_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// User is the denormalised profile record of a signed-up member.
type User struct {
	UID         string                      `gorm:"primaryKey;size:64" json:"uid"`
	DisplayName string                      `gorm:"size:255" json:"display_name"`
	Email       string                      `gorm:"size:255;index" json:"email"`
	PhotoURL    string                      `gorm:"size:512" json:"photo_url"`
	Hobbies     datatypes.JSONSlice[string] `json:"hobbies"`
	Communities datatypes.JSONSlice[string] `json:"communities"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// AddHobby inserts the hobby label when absent and reports whether the set changed.
func (u *User) AddHobby(name string) bool {
	var changed bool
	u.Hobbies, changed = addUnique(u.Hobbies, name)
	return changed
}

// AddCommunity inserts the community id when absent and reports whether the set changed.
func (u *User) AddCommunity(id string) bool {
	var changed bool
	u.Communities, changed = addUnique(u.Communities, id)
	return changed
}

func addUnique(values datatypes.JSONSlice[string], value string) (datatypes.JSONSlice[string], bool) {
	for _, existing := range values {
		if existing == value {
			return values, false
		}
	}
	return append(values, value), true
}

func containsValue(values datatypes.JSONSlice[string], value string) bool {
	for _, existing := range values {
		if existing == value {
			return true
		}
	}
	return false
}
