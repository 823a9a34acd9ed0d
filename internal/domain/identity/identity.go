// Package identity provides the caller identity used to gate persistence.
package identity

// Identity is the user a session runs for.
type Identity struct {
	UserID string
	Email  string
	Guest  bool
}

// Guest returns the identity used when nobody is signed in.
func Guest() Identity {
	return Identity{Guest: true}
}

// User returns an authenticated identity.
func User(userID, email string) Identity {
	return Identity{UserID: userID, Email: email}
}

// IsAuthenticated reports whether completions for this identity may be persisted.
func (i Identity) IsAuthenticated() bool {
	return !i.Guest && i.UserID != ""
}

// DisplayName returns a short name for logs and prompts.
func (i Identity) DisplayName() string {
	if !i.IsAuthenticated() {
		return "Guest User"
	}
	if i.Email != "" {
		return i.Email
	}
	return i.UserID
}
