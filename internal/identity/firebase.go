package identity

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"
)

// UserRecord is the subset of an identity-provider user record the service needs.
type UserRecord struct {
	UID           string
	Email         string
	DisplayName   string
	EmailVerified bool
	Disabled      bool
}

// Directory looks up user records in Firebase Auth.
type Directory struct {
	client *auth.Client
}

// NewDirectory wraps a Firebase Auth client.
func NewDirectory(client *auth.Client) *Directory {
	return &Directory{client: client}
}

// LookupUser fetches the user record for uid.
func (d *Directory) LookupUser(ctx context.Context, uid string) (*UserRecord, error) {
	u, err := d.client.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return &UserRecord{
		UID:           u.UID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		EmailVerified: u.EmailVerified,
		Disabled:      u.Disabled,
	}, nil
}
