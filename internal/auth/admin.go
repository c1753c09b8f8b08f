// Package auth guards the administrative REST surface.
package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// Admin holds the bcrypt hash of the administrator password. The plain
// password is only seen once, at startup.
type Admin struct {
	hash []byte
}

func NewAdmin(password string) (*Admin, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Admin{hash: hash}, nil
}

// CheckPassword reports whether password is the administrator password.
func (a *Admin) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
}
