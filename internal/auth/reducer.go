package auth

// State is the provider's value. It is replaced on every action, never
// mutated in place.
type State struct {
	Status  Status
	Session *Session
}

// Action is a tagged state transition.
type Action interface {
	isAuthAction()
}

// SetLoading marks the session as being (re)read.
type SetLoading struct{}

// SetUnauthenticated drops the token without touching the stored session.
type SetUnauthenticated struct{}

// SignIn installs a session.
type SignIn struct {
	Session *Session
}

// SignOut forgets the session.
type SignOut struct{}

func (SetLoading) isAuthAction()         {}
func (SetUnauthenticated) isAuthAction() {}
func (SignIn) isAuthAction()             {}
func (SignOut) isAuthAction()            {}

// Reduce applies an action to a state and returns the new state.
func Reduce(state State, action Action) State {
	switch a := action.(type) {
	case SetLoading:
		return State{Status: StatusLoading, Session: state.Session}
	case SetUnauthenticated:
		return State{Status: StatusUnauthenticated}
	case SignIn:
		if a.Session == nil || a.Session.AccessToken == "" {
			return State{Status: StatusUnauthenticated}
		}
		s := *a.Session
		return State{Status: StatusAuthenticated, Session: &s}
	case SignOut:
		return State{Status: StatusUnauthenticated}
	default:
		return state
	}
}
