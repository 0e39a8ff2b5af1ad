package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/deskauth/internal/client/client"
	"github.com/dmitrijs2005/deskauth/internal/client/models"
)

// State is the lifecycle position of an AuthService.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateProvisioning
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateProvisioning:
		return "provisioning"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// AuthService owns the current authenticated channel and the user profile.
//
// Contract:
//   - Login: password login; on first login for a user on this store a
//     device identity is minted, registered remotely and persisted.
//   - LoginAsGuest: create a throwaway guest account, then Login with it.
//   - AutoLogin: re-authenticate the last active user with its device key.
//     Never fails; any problem yields false.
//   - ForgotPassword: request a reset code over a recovery channel kept for
//     ResetPassword, even when the call fails. A logged-in user channel is
//     left untouched.
//   - ResetPassword: reset with the code; the recovery channel is always
//     closed and cleared.
//   - Logout: best-effort close of every channel and local sign-out; never
//     fails.
//
// Callers serialise the lifecycle operations; AuthService does no locking.
type AuthService interface {
	Login(ctx context.Context, username, password string) error
	LoginAsGuest(ctx context.Context) error
	AutoLogin(ctx context.Context) bool
	ForgotPassword(ctx context.Context, email string) (*client.Result, error)
	ResetPassword(ctx context.Context, email, password, otp string) (*client.Result, error)
	Logout(ctx context.Context)

	Restore(ctx context.Context) error
	CurrentUser() *models.UserProfile
	IsAuthenticated() bool
	State() State
	Session() (client.Session, error)
	ForgetDevice(ctx context.Context) error
	Registration() RegistrationFlow
	Close(ctx context.Context)
}

type authService struct {
	opts Options
	reg  RegistrationFlow
	now  func() time.Time

	current  client.Session
	recovery client.Session
	profile  *models.UserProfile
	state    State
}

// NewAuthService builds an AuthService. Guest accounts are created through
// reg.
func NewAuthService(opts Options, reg RegistrationFlow) AuthService {
	opts = opts.withDefaults()
	if reg == nil {
		reg = NewRegistrationFlow(opts)
	}
	return &authService{opts: opts, reg: reg, now: time.Now}
}

func (a *authService) Login(ctx context.Context, username, password string) error {
	log := a.opts.Logger
	a.state = StateAuthenticating

	s, err := a.opts.Dialer.DialCRA(ctx, username, password)
	if err != nil {
		a.settle()
		return fmt.Errorf("login %s: %w", username, err)
	}
	a.setCurrent(ctx, s)

	profile, err := a.fetchProfile(ctx, s)
	if err != nil {
		a.dropCurrent(ctx)
		return fmt.Errorf("login %s: %w", username, err)
	}

	if err := a.ensureDevice(ctx, s, profile.ID); err != nil {
		a.dropCurrent(ctx)
		return fmt.Errorf("login %s: %w", username, err)
	}

	if err := a.opts.Store.SaveSession(ctx, profile); err != nil {
		a.dropCurrent(ctx)
		return fmt.Errorf("login %s: persist session: %w", username, err)
	}

	a.profile = profile
	a.state = StateAuthenticated
	log.Info(ctx, "logged in", "user_id", profile.ID, "username", profile.Username)
	return nil
}

func (a *authService) LoginAsGuest(ctx context.Context) error {
	creds, err := newGuestCredentials(a.now())
	if err != nil {
		return err
	}

	if _, err := a.reg.CreateAccount(ctx, creds.Username, creds.Name, creds.Password, models.AccountGuest); err != nil {
		return fmt.Errorf("create guest account: %w", err)
	}
	// Guest accounts need no verification.
	a.reg.Release(ctx)

	return a.Login(ctx, creds.Username, creds.Password)
}

func (a *authService) AutoLogin(ctx context.Context) bool {
	log := a.opts.Logger
	store := a.opts.Store

	lastID, err := store.LastUser(ctx)
	if err != nil {
		log.Warn(ctx, "auto-login: read last user", "error", err)
		return false
	}
	profile, err := store.Profile(ctx)
	if err != nil {
		log.Warn(ctx, "auto-login: read profile", "error", err)
		return false
	}
	if lastID == "" || profile == nil {
		log.Debug(ctx, "auto-login: no previous user")
		return false
	}

	cred, err := store.Device(ctx, lastID)
	if err != nil {
		log.Warn(ctx, "auto-login: read device credential", "user_id", lastID, "error", err)
		return false
	}
	if cred == nil {
		log.Debug(ctx, "auto-login: no device credential", "user_id", lastID)
		return false
	}

	identity := profile.Identity(a.opts.IdentityField)
	if identity == "" {
		log.Warn(ctx, "auto-login: profile has no identity", "field", a.opts.IdentityField)
		return false
	}

	a.state = StateAuthenticating
	s, err := a.opts.Dialer.DialCryptosign(ctx, identity, cred.PrivateKey)
	if err != nil {
		a.settle()
		log.Warn(ctx, "auto-login rejected", "identity", identity, "device_id", cred.DeviceID, "error", err)
		return false
	}
	a.setCurrent(ctx, s)

	fresh, err := a.fetchProfile(ctx, s)
	if err == nil && fresh.ID != lastID {
		err = fmt.Errorf("%w: device key authenticated user %s, expected %s", ErrInvalidProfile, fresh.ID, lastID)
	}
	if err == nil {
		err = store.SaveProfile(ctx, fresh)
	}
	if err != nil {
		a.dropCurrent(ctx)
		log.Warn(ctx, "auto-login failed", "identity", identity, "error", err)
		return false
	}

	a.profile = fresh
	a.state = StateAuthenticated
	log.Info(ctx, "auto-login succeeded", "user_id", fresh.ID, "device_id", cred.DeviceID)
	return true
}

func (a *authService) ForgotPassword(ctx context.Context, email string) (*client.Result, error) {
	s, err := a.opts.dialRegistrar(ctx)
	if err != nil {
		return nil, fmt.Errorf("forgot password: open registrar session: %w", err)
	}
	release(ctx, a.opts.Logger, a.recovery)
	a.recovery = s

	res, err := s.Call(ctx, a.opts.procedure(ProcPasswordForget), []any{email}, nil)
	if err != nil {
		return nil, fmt.Errorf("forgot password: %w", err)
	}

	a.opts.Logger.Info(ctx, "password reset requested", "email", email)
	return res, nil
}

func (a *authService) ResetPassword(ctx context.Context, email, password, otp string) (*client.Result, error) {
	s := a.recovery
	a.recovery = nil
	if s == nil {
		var err error
		if s, err = a.opts.dialRegistrar(ctx); err != nil {
			return nil, fmt.Errorf("reset password: open registrar session: %w", err)
		}
	}
	defer release(ctx, a.opts.Logger, s)

	res, err := s.Call(ctx, a.opts.procedure(ProcPasswordReset), []any{email, password, otp}, nil)
	if err != nil {
		return nil, fmt.Errorf("reset password: %w", err)
	}

	a.opts.Logger.Info(ctx, "password reset", "email", email)
	return res, nil
}

func (a *authService) Logout(ctx context.Context) {
	log := a.opts.Logger

	a.dropCurrent(ctx)
	a.dropRecovery(ctx)
	a.profile = nil
	a.state = StateAnonymous

	if err := a.opts.Store.ClearProfile(ctx); err != nil {
		log.Error(ctx, "logout: clear profile", "error", err)
	}
	if err := a.opts.Store.ClearLastUser(ctx); err != nil {
		log.Error(ctx, "logout: clear last user", "error", err)
	}
	log.Info(ctx, "logged out")
}

// Restore loads the persisted profile so a restarted client starts in the
// state it was left in. It does not open a channel; see AutoLogin.
func (a *authService) Restore(ctx context.Context) error {
	profile, err := a.opts.Store.Profile(ctx)
	if err != nil {
		return fmt.Errorf("restore profile: %w", err)
	}
	if !profile.Valid() {
		return nil
	}
	a.profile = profile
	a.state = StateAuthenticated
	return nil
}

func (a *authService) CurrentUser() *models.UserProfile { return a.profile.Clone() }

func (a *authService) IsAuthenticated() bool { return a.profile != nil }

func (a *authService) State() State { return a.state }

// Session returns the authenticated user channel for application calls.
func (a *authService) Session() (client.Session, error) {
	if a.current == nil {
		return nil, ErrNoSession
	}
	return a.current, nil
}

// ForgetDevice deletes the stored device credential of the current user.
// The next Login provisions a new device identity.
func (a *authService) ForgetDevice(ctx context.Context) error {
	if a.profile == nil {
		return ErrNoSession
	}
	if err := a.opts.Store.DeleteDevice(ctx, a.profile.ID); err != nil {
		return fmt.Errorf("forget device: %w", err)
	}
	a.opts.Logger.Info(ctx, "device credential removed", "user_id", a.profile.ID)
	return nil
}

func (a *authService) Registration() RegistrationFlow { return a.reg }

// Close releases every channel held by the service without touching
// persisted state.
func (a *authService) Close(ctx context.Context) {
	a.reg.Release(ctx)
	a.dropRecovery(ctx)
	if a.current != nil {
		release(ctx, a.opts.Logger, a.current)
		a.current = nil
	}
}

func (a *authService) fetchProfile(ctx context.Context, s client.Session) (*models.UserProfile, error) {
	res, err := s.Call(ctx, a.opts.procedure(ProcAccountGet), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	var p models.UserProfile
	if err := res.DecodePayload(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if !p.Valid() {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidProfile)
	}
	return &p, nil
}

// ensureDevice provisions a device identity for userID unless one is already
// stored. Stored credentials are trusted as they are.
func (a *authService) ensureDevice(ctx context.Context, s client.Session, userID models.UserID) error {
	existing, err := a.opts.Store.Device(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup device credential: %w", err)
	}
	if existing != nil {
		a.opts.Logger.Debug(ctx, "device credential present", "user_id", userID, "device_id", existing.DeviceID)
		return nil
	}

	a.state = StateProvisioning
	deviceID := a.opts.Agent.DeviceID()
	kp, err := a.opts.Agent.KeyPair()
	if err != nil {
		return fmt.Errorf("generate device key: %w", err)
	}

	kwargs := map[string]any{"name": a.opts.DeviceName}
	if _, err := s.Call(ctx, a.opts.procedure(ProcDeviceCreate), []any{deviceID, kp.PublicKey}, kwargs); err != nil {
		return fmt.Errorf("register device: %w", err)
	}

	cred := models.DeviceCredential{DeviceID: deviceID, PrivateKey: kp.PrivateKey}
	if err := a.opts.Store.SaveDevice(ctx, userID, cred); err != nil {
		return fmt.Errorf("persist device credential: %w", err)
	}

	a.opts.Logger.Info(ctx, "device provisioned", "user_id", userID, "device_id", deviceID)
	return nil
}

// setCurrent makes s the current user channel. A channel it replaces is
// closed.
func (a *authService) setCurrent(ctx context.Context, s client.Session) {
	if a.current != nil && a.current != s {
		a.opts.Logger.Debug(ctx, "closing replaced user session")
		release(ctx, a.opts.Logger, a.current)
	}
	a.current = s
}

func (a *authService) dropCurrent(ctx context.Context) {
	release(ctx, a.opts.Logger, a.current)
	a.current = nil
	a.settle()
}

func (a *authService) dropRecovery(ctx context.Context) {
	release(ctx, a.opts.Logger, a.recovery)
	a.recovery = nil
}

// settle derives the resting state from the in-memory profile.
func (a *authService) settle() {
	if a.profile != nil {
		a.state = StateAuthenticated
		return
	}
	a.state = StateAnonymous
}
