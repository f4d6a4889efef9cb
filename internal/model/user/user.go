package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is a student account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"-"`
	Name         string    `json:"name"`
	Grade        *string   `json:"grade"`
	Section      *string   `json:"section"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewUser is the sign-up payload.
type NewUser struct {
	Username string  `json:"username" validate:"required,notblank,max=64"`
	Password string  `json:"password" validate:"required,min=6"`
	Name     string  `json:"name" validate:"required,notblank"`
	Grade    *string `json:"grade,omitempty"`
	Section  *string `json:"section,omitempty"`
}

// Credentials is the login payload.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}
