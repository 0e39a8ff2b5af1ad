package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/dmitrijs2005/deskauth/internal/client/client"
	"github.com/dmitrijs2005/deskauth/internal/client/credentials"
	"github.com/dmitrijs2005/deskauth/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/deskauth/internal/cryptox"
	"github.com/dmitrijs2005/deskauth/internal/logging"
)

const (
	testRegistrarID  = "deskconn-web-app"
	testRegistrarKey = "registrar-key"
)

// ---- fake session channel ----

type handlerFunc func(s *fakeSession, args []any, kwargs map[string]any) (*client.Result, error)

type recordedCall struct {
	Session   int
	Procedure string
	Args      []any
	Kwargs    map[string]any
}

type recordedDial struct {
	Method string
	AuthID string
	Secret string
}

type fakeSession struct {
	id       int
	authID   string
	method   string
	dialer   *fakeDialer
	closed   int
	closeErr error
}

func (s *fakeSession) Call(ctx context.Context, procedure string, args []any, kwargs map[string]any) (*client.Result, error) {
	d := s.dialer
	suffix := strings.TrimPrefix(procedure, DefaultPrefix+".")
	d.calls = append(d.calls, recordedCall{Session: s.id, Procedure: suffix, Args: args, Kwargs: kwargs})
	d.events = append(d.events, fmt.Sprintf("call %s #%d", suffix, s.id))

	if s.closed > 0 {
		return nil, client.ErrSessionClosed
	}
	if h, ok := d.handlers[suffix]; ok {
		return h(s, args, kwargs)
	}
	return &client.Result{Args: []any{map[string]any{"ok": true}}}, nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.closed++
	s.dialer.events = append(s.dialer.events, fmt.Sprintf("close #%d", s.id))
	return s.closeErr
}

// fakeDialer implements client.Dialer and records everything it is asked.
type fakeDialer struct {
	craErr   error
	signErr  error
	closeErr error

	handlers map[string]handlerFunc

	dials    []recordedDial
	sessions []*fakeSession
	calls    []recordedCall
	events   []string
}

func newFakeDialer() *fakeDialer {
	d := &fakeDialer{handlers: make(map[string]handlerFunc)}
	d.handlers[ProcAccountGet] = func(s *fakeSession, _ []any, _ map[string]any) (*client.Result, error) {
		return profileResult(42, s.authID), nil
	}
	d.handlers[ProcAccountVerify] = func(_ *fakeSession, args []any, _ map[string]any) (*client.Result, error) {
		if len(args) < 2 || args[1] != "000000" {
			return nil, &client.RemoteError{URI: "wamp.error.invalid_argument", Args: []any{"invalid verification code"}}
		}
		return &client.Result{Args: []any{map[string]any{"verified": true}}}, nil
	}
	d.handlers[ProcDeviceCreate] = func(_ *fakeSession, _ []any, _ map[string]any) (*client.Result, error) {
		return &client.Result{}, nil
	}
	return d
}

func profileResult(id int, username string) *client.Result {
	return &client.Result{Args: []any{map[string]any{
		"id":       id,
		"username": username,
		"name":     "Bob",
		"email":    username + "@example.com",
	}}}
}

func (d *fakeDialer) open(method, authID string) *fakeSession {
	s := &fakeSession{id: len(d.sessions) + 1, authID: authID, method: method, dialer: d, closeErr: d.closeErr}
	d.sessions = append(d.sessions, s)
	d.events = append(d.events, fmt.Sprintf("dial %s %s #%d", method, authID, s.id))
	return s
}

func (d *fakeDialer) DialCRA(ctx context.Context, authID, secret string) (client.Session, error) {
	d.dials = append(d.dials, recordedDial{Method: "cra", AuthID: authID, Secret: secret})
	if d.craErr != nil {
		return nil, d.craErr
	}
	return d.open("cra", authID), nil
}

func (d *fakeDialer) DialCryptosign(ctx context.Context, authID, privateKey string) (client.Session, error) {
	d.dials = append(d.dials, recordedDial{Method: "cryptosign", AuthID: authID, Secret: privateKey})
	if d.signErr != nil {
		return nil, d.signErr
	}
	return d.open("cryptosign", authID), nil
}

func (d *fakeDialer) dialsBy(authID string) int {
	n := 0
	for _, dl := range d.dials {
		if dl.AuthID == authID {
			n++
		}
	}
	return n
}

func (d *fakeDialer) callsTo(suffix string) []recordedCall {
	var out []recordedCall
	for _, c := range d.calls {
		if c.Procedure == suffix {
			out = append(out, c)
		}
	}
	return out
}

func (d *fakeDialer) last() *fakeSession {
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

// ---- deterministic key agent ----

type fakeAgent struct {
	n      int
	keyErr error
}

func (a *fakeAgent) DeviceID() string {
	a.n++
	return fmt.Sprintf("device-test-%d", a.n)
}

func (a *fakeAgent) KeyPair() (cryptox.KeyPair, error) {
	if a.keyErr != nil {
		return cryptox.KeyPair{}, a.keyErr
	}
	return cryptox.KeyPair{
		PrivateKey: fmt.Sprintf("priv-%d", a.n),
		PublicKey:  fmt.Sprintf("pub-%d", a.n),
	}, nil
}

// ---- fixture ----

type fixture struct {
	svc    *authService
	reg    *registrationFlow
	dialer *fakeDialer
	agent  *fakeAgent
	repo   *metadata.MemoryRepository
	store  *credentials.Store
	opts   Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, metadata.NewMemoryRepository())
}

func newFixtureWithRepo(t *testing.T, repo *metadata.MemoryRepository) *fixture {
	t.Helper()
	f := &fixture{
		dialer: newFakeDialer(),
		agent:  &fakeAgent{},
		repo:   repo,
		store:  credentials.NewStore(repo),
	}
	f.opts = Options{
		Dialer:    f.dialer,
		Store:     f.store,
		Agent:     f.agent,
		Registrar: Registrar{AuthID: testRegistrarID, PrivateKey: testRegistrarKey},
		Logger:    logging.NewNop(),
	}
	f.reg = NewRegistrationFlow(f.opts).(*registrationFlow)
	f.svc = NewAuthService(f.opts, f.reg).(*authService)
	return f
}
