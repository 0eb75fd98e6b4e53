package keyproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Mode is the auth form's current mode.
type Mode string

const (
	ModeLogin  Mode = "login"
	ModeSignup Mode = "signup"
)

// Authenticator is the backend side of the auth flow; *Client implements it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
	Signup(ctx context.Context, req SignupRequest) error
}

// Form field names accepted by AuthController.SetField.
const (
	FormCompanyName         = "company_name"
	FormContactName         = "contact_name"
	FormPhoneNumber         = "phone_number"
	FormEmail               = "email"
	FormPassword            = "password"
	FormConfirmPassword     = "confirm_password"
	FormKMSSelection        = "kms_selection"
	FormEncryptionAlgorithm = "security_preferences.encryption_algorithm"
	FormAccessControl       = "security_preferences.access_control"
)

// AuthForm holds everything typed into the login/signup form.
type AuthForm struct {
	CompanyName     string
	ContactName     string
	PhoneNumber     string
	Email           string
	Password        string
	ConfirmPassword string
	KMSSelection    Provider
	Security        SecurityPreferences
}

// AuthController drives the login/signup form.
//
// It starts in ModeLogin. Submit in login mode stores the returned token in
// the Session and navigates to the dashboard; in signup mode it checks the
// password confirmation locally, posts the signup request and switches back
// to login. Failures leave the mode and all fields untouched and set a single
// error message.
//
// Submissions run under a context tied to the controller: Close cancels any
// request in flight and results arriving afterwards are dropped.
type AuthController struct {
	api     Authenticator
	session *Session
	nav     *Navigator
	log     *slog.Logger

	mu      sync.Mutex
	mode    Mode
	form    AuthForm
	creds   CredentialBuilder
	errMsg  string
	loading bool

	life   context.Context
	cancel context.CancelFunc
}

type ControllerOption func(*AuthController)

func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(c *AuthController) {
		if l != nil {
			c.log = l
		}
	}
}

// NewAuthController wires a controller to the backend and session. A nil nav
// gets a fresh Navigator on session.
func NewAuthController(api Authenticator, session *Session, nav *Navigator, opts ...ControllerOption) *AuthController {
	if api == nil {
		panic("authenticator is required")
	}
	if session == nil {
		panic("session is required")
	}
	if nav == nil {
		nav = NewNavigator(session)
	}
	life, cancel := context.WithCancel(context.Background())
	c := &AuthController{
		api:     api,
		session: session,
		nav:     nav,
		log:     slog.Default(),
		mode:    ModeLogin,
		form: AuthForm{
			KMSSelection: DefaultProvider,
			Security:     SecurityPreferences{AccessControl: AccessRBAC},
		},
		creds:  NewCredentialBuilder(),
		life:   life,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AuthController) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches between login and signup. Fields are kept; the error
// message is cleared.
func (c *AuthController) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m != ModeLogin && m != ModeSignup {
		return
	}
	c.mode = m
	c.errMsg = ""
}

func (c *AuthController) ToggleMode() {
	if c.Mode() == ModeLogin {
		c.SetMode(ModeSignup)
		return
	}
	c.SetMode(ModeLogin)
}

// SetField updates one form field by name.
func (c *AuthController) SetField(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := &c.form
	switch name {
	case FormCompanyName:
		f.CompanyName = value
	case FormContactName:
		f.ContactName = value
	case FormPhoneNumber:
		f.PhoneNumber = value
	case FormEmail:
		f.Email = value
	case FormPassword:
		f.Password = value
	case FormConfirmPassword:
		f.ConfirmPassword = value
	case FormKMSSelection:
		p, err := ParseProvider(value)
		if err != nil {
			return err
		}
		f.KMSSelection = p
	case FormEncryptionAlgorithm:
		f.Security.EncryptionAlgorithm = EncryptionAlgorithm(value)
	case FormAccessControl:
		f.Security.AccessControl = AccessControl(value)
	default:
		return &ValidationError{Message: fmt.Sprintf("unknown form field %q", name)}
	}
	return nil
}

// SetCredential edits one credential field of the currently selected
// provider.
func (c *AuthController) SetCredential(field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := c.creds.Set(c.form.KMSSelection, field, value)
	if err != nil {
		return err
	}
	c.creds = next
	return nil
}

// UploadServiceAccount takes the GCP service account file. A nil reader
// leaves the credentials unchanged. The file is read without holding the
// controller lock; edits made meanwhile are kept.
func (c *AuthController) UploadServiceAccount(r io.Reader) error {
	if r == nil {
		return nil
	}
	encoded, err := encodeServiceAccount(r)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := c.creds.Set(ProviderGCP, FieldServiceAccountJSON, encoded)
	if err != nil {
		return err
	}
	c.creds = next
	return nil
}

func (c *AuthController) Form() AuthForm {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

func (c *AuthController) Credentials() CredentialBuilder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// Error is the message shown above the form, empty when there is none.
func (c *AuthController) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Loading is true only while a submission is in flight.
func (c *AuthController) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Navigator returns the navigator the controller drives.
func (c *AuthController) Navigator() *Navigator { return c.nav }

// Submit sends the form in the current mode. The returned error is the same
// condition rendered by Error.
func (c *AuthController) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.life.Err() != nil {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.loading {
		c.mu.Unlock()
		return ErrSubmitInFlight
	}
	c.loading = true
	c.errMsg = ""
	mode, form, creds := c.mode, c.form, c.creds
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.life, cancel)
	defer stop()

	var err error
	if mode == ModeLogin {
		err = c.login(ctx, form)
	} else {
		err = c.signup(ctx, form, creds)
	}
	if err != nil {
		c.fail(mode, err)
	}
	return err
}

// Close cancels any submission in flight. The controller rejects further
// submissions.
func (c *AuthController) Close() { c.cancel() }

func (c *AuthController) login(ctx context.Context, form AuthForm) error {
	token, err := c.api.Login(ctx, form.Email, form.Password)
	if err != nil {
		return err
	}
	if c.life.Err() != nil {
		return ErrControllerClosed
	}
	if err := c.session.SignIn(ctx, token); err != nil {
		return err
	}
	c.nav.Navigate(ViewDashboard)
	return nil
}

func (c *AuthController) signup(ctx context.Context, form AuthForm, creds CredentialBuilder) error {
	if form.Password != form.ConfirmPassword {
		return ErrPasswordMismatch
	}
	req := SignupRequest{
		CompanyName:         form.CompanyName,
		ContactName:         form.ContactName,
		PhoneNumber:         form.PhoneNumber,
		Email:               form.Email,
		Password:            form.Password,
		ConfirmPassword:     form.ConfirmPassword,
		KMSSelection:        form.KMSSelection,
		SecurityPreferences: form.Security,
	}
	if payload, ok := creds.Payload(form.KMSSelection); ok {
		req.KMSCredentials = &payload
	}
	if err := c.api.Signup(ctx, req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.life.Err() != nil {
		return ErrControllerClosed
	}
	c.mode = ModeLogin
	return nil
}

func (c *AuthController) fail(mode Mode, err error) {
	var terr *TransportError
	if errors.As(err, &terr) {
		c.log.Error("auth request failed", "mode", string(mode), "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.life.Err() != nil {
		return
	}
	c.errMsg = UserMessage(err)
}
