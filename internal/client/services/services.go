// Package services contains the authentication core of the deskauth client:
// the registration flow (create, verify, resend) run under the registrar
// identity, and the session lifecycle (login, guest login, auto-login,
// password recovery, logout) including device provisioning.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/deskauth/internal/client/client"
	"github.com/dmitrijs2005/deskauth/internal/client/credentials"
	"github.com/dmitrijs2005/deskauth/internal/client/models"
	"github.com/dmitrijs2005/deskauth/internal/cryptox"
	"github.com/dmitrijs2005/deskauth/internal/logging"
)

var (
	ErrInvalidProfile        = errors.New("invalid user profile")
	ErrNoPendingRegistration = errors.New("no pending registration")
	ErrNoSession             = errors.New("no authenticated session")
)

// Remote procedure names, relative to the configured prefix.
const (
	ProcAccountCreate   = "account.create"
	ProcAccountVerify   = "account.verify"
	ProcAccountResend   = "account.otp.resend"
	ProcAccountGet      = "account.get"
	ProcPasswordForget  = "account.password.forget"
	ProcPasswordReset   = "account.password.reset"
	ProcDeviceCreate    = "device.create"
	DefaultPrefix       = "io.xconn.deskconn"
	DefaultDeviceName   = "Browser Interface"
	DefaultRegistrarID  = "deskconn-web-app"
	minPasswordLength   = 8
	guestUsernamePrefix = "guest_"
)

// KeyAgent mints device identities.
type KeyAgent interface {
	DeviceID() string
	KeyPair() (cryptox.KeyPair, error)
}

// Registrar is the fixed, process-wide identity used for account creation,
// verification and recovery.
type Registrar struct {
	AuthID     string
	PrivateKey string
}

// Options wire the services to their collaborators.
type Options struct {
	Dialer    client.Dialer
	Store     *credentials.Store
	Agent     KeyAgent
	Registrar Registrar
	Logger    logging.Logger

	// Prefix is the procedure namespace, DefaultPrefix when empty.
	Prefix string
	// DeviceName is sent with device.create.
	DeviceName string
	// IdentityField selects the auto-login identity.
	IdentityField models.IdentityField
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.DeviceName == "" {
		o.DeviceName = DefaultDeviceName
	}
	if o.IdentityField == "" {
		o.IdentityField = models.IdentityUsernameOrEmail
	}
	if o.Agent == nil {
		o.Agent = cryptox.Agent{}
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return o
}

// procedure joins the namespace prefix and a procedure suffix.
func (o Options) procedure(suffix string) string {
	prefix := strings.TrimSuffix(o.Prefix, ".")
	if prefix == "" {
		return suffix
	}
	return prefix + "." + suffix
}

func (o Options) dialRegistrar(ctx context.Context) (client.Session, error) {
	return o.Dialer.DialCryptosign(ctx, o.Registrar.AuthID, o.Registrar.PrivateKey)
}

// release closes s; failures are logged and never returned.
func release(ctx context.Context, log logging.Logger, s client.Session) {
	if s == nil {
		return
	}
	if err := s.Close(ctx); err != nil {
		log.Warn(ctx, "session close failed", "error", err)
	}
}
