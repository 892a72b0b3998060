package domain

import "strings"

// Identity is the authenticated user record returned by the application server.
// It is sourced either from the password endpoints or from the federated
// reconciliation endpoint.
type Identity struct {
	ID          int64  `json:"id" yaml:"id"`
	Username    string `json:"username" yaml:"username"`
	Email       string `json:"email" yaml:"email"`
	FullName    string `json:"fullName" yaml:"full_name"`
	PhotoURL    string `json:"photoURL,omitempty" yaml:"photo_url,omitempty"`
	FirebaseUID string `json:"firebaseUid,omitempty" yaml:"firebase_uid,omitempty"`
}

// DisplayName returns the best human readable name for greetings.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	if name := strings.TrimSpace(i.FullName); name != "" {
		return name
	}
	if i.Username != "" {
		return i.Username
	}
	return i.Email
}

// Clone returns a copy that shares no memory with the receiver.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Credentials is the body of POST /api/login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is the body of POST /api/register.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}
