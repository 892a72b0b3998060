package domain

// Session is the client-side view of the caller's authentication state.
// The zero value is an anonymous, idle session.
type Session struct {
	Identity         *Identity `yaml:"identity,omitempty"`
	IsLoading        bool      `yaml:"is_loading"`        // initial session fetch in flight
	IsAuthenticating bool      `yaml:"is_authenticating"` // login/register/logout/federated in flight
	LastError        string    `yaml:"last_error,omitempty"`
}

// IsAuthenticated reports whether an identity is installed.
func (s Session) IsAuthenticated() bool {
	return s.Identity != nil
}

// SubmitDisabled is the declarative disabled state for credential forms and
// buttons. Inputs stay disabled while any session operation is in flight.
func (s Session) SubmitDisabled() bool {
	return s.IsAuthenticating || s.IsLoading
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	s.Identity = s.Identity.Clone()
	return s
}

// OperationKind names a session operation. Login and register are the kinds
// subject to the submission cooldown.
type OperationKind string

const (
	OperationFetch     OperationKind = "fetch"
	OperationLogin     OperationKind = "login"
	OperationRegister  OperationKind = "register"
	OperationLogout    OperationKind = "logout"
	OperationFederated OperationKind = "federated"
)
