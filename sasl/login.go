package sasl

// Login state constants
const (
	loginStateInitial = iota
	loginStateUsername
	loginStateDone
)

// Base64-encoded challenge strings servers send for the LOGIN mechanism.
const (
	// LoginChallengeUsername is "Username:" encoded in base64
	LoginChallengeUsername = "VXNlcm5hbWU6"
	// LoginChallengePassword is "Password:" encoded in base64
	LoginChallengePassword = "UGFzc3dvcmQ6"
)

// Login implements the LOGIN SASL mechanism.
// DEPRECATED on the wire but still the only option on some legacy servers.
// The first challenge is answered with the username and the second with the
// password; the challenge text itself is not interpreted.
type Login struct {
	state    int
	username string
	password string
}

// NewLogin creates a new LOGIN mechanism.
func NewLogin(username, password string) *Login {
	return &Login{
		state:    loginStateInitial,
		username: username,
		password: password,
	}
}

// Name returns "LOGIN".
func (l *Login) Name() string {
	return MechanismLogin
}

// Start returns no initial response.
func (l *Login) Start() ([]byte, error) {
	return nil, nil
}

// Next answers the username and password prompts in turn.
func (l *Login) Next(challenge []byte) ([]byte, error) {
	switch l.state {
	case loginStateInitial:
		l.state = loginStateUsername
		return []byte(l.username), nil
	case loginStateUsername:
		l.state = loginStateDone
		return []byte(l.password), nil
	default:
		return nil, ErrUnexpectedChallenge
	}
}

// Done reports whether the password has been sent.
func (l *Login) Done() bool {
	return l.state == loginStateDone
}
