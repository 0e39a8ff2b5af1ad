package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/deskauth/internal/client/client"
	"github.com/dmitrijs2005/deskauth/internal/client/models"
)

// RegistrationFlow drives account creation and verification under the
// registrar identity.
//
// Contract:
//   - CreateAccount: open a registrar channel and create the account. On
//     success the channel is retained for the next step and, for user
//     accounts, the username is persisted as the pending registration. On
//     failure the channel is closed.
//   - Verify: requires a pending registration for username. Uses the
//     retained channel or opens one, and always closes it. The pending
//     marker is cleared only on success.
//   - ResendCode: same precondition; the channel stays retained afterwards.
//   - Abandon: release the channel and forget the pending registration.
//   - Release: close the retained channel, if any.
type RegistrationFlow interface {
	CreateAccount(ctx context.Context, username, name, password string, kind models.AccountKind) (*client.Result, error)
	Verify(ctx context.Context, username, code string) (*client.Result, error)
	ResendCode(ctx context.Context, username string) (*client.Result, error)
	Abandon(ctx context.Context) error
	Release(ctx context.Context)
	Pending(ctx context.Context) (string, error)
}

type registrationFlow struct {
	opts    Options
	channel client.Session
}

// NewRegistrationFlow returns a RegistrationFlow that opens registrar
// channels through opts.
func NewRegistrationFlow(opts Options) RegistrationFlow {
	return &registrationFlow{opts: opts.withDefaults()}
}

func (f *registrationFlow) CreateAccount(ctx context.Context, username, name, password string, kind models.AccountKind) (*client.Result, error) {
	f.Release(ctx)

	s, err := f.opts.dialRegistrar(ctx)
	if err != nil {
		return nil, fmt.Errorf("open registrar session: %w", err)
	}

	res, err := s.Call(ctx, f.opts.procedure(ProcAccountCreate), []any{username, name, string(kind), password}, nil)
	if err != nil {
		release(ctx, f.opts.Logger, s)
		return nil, fmt.Errorf("create account %s: %w", username, err)
	}

	if kind == models.AccountUser {
		if err := f.opts.Store.SetPending(ctx, username); err != nil {
			release(ctx, f.opts.Logger, s)
			return nil, fmt.Errorf("persist pending registration: %w", err)
		}
	}
	f.channel = s

	f.opts.Logger.Info(ctx, "account created", "username", username, "kind", kind)
	return res, nil
}

func (f *registrationFlow) Verify(ctx context.Context, username, code string) (*client.Result, error) {
	if err := f.requirePending(ctx, username); err != nil {
		return nil, err
	}

	s, err := f.take(ctx)
	if err != nil {
		return nil, err
	}
	defer release(ctx, f.opts.Logger, s)

	res, err := s.Call(ctx, f.opts.procedure(ProcAccountVerify), []any{username, code}, nil)
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", username, err)
	}

	if err := f.opts.Store.ClearPending(ctx); err != nil {
		return res, fmt.Errorf("clear pending registration: %w", err)
	}

	f.opts.Logger.Info(ctx, "account verified", "username", username)
	return res, nil
}

func (f *registrationFlow) ResendCode(ctx context.Context, username string) (*client.Result, error) {
	if err := f.requirePending(ctx, username); err != nil {
		return nil, err
	}

	s, err := f.take(ctx)
	if err != nil {
		return nil, err
	}
	f.channel = s

	res, err := s.Call(ctx, f.opts.procedure(ProcAccountResend), []any{username}, nil)
	if err != nil {
		return nil, fmt.Errorf("resend code to %s: %w", username, err)
	}

	f.opts.Logger.Info(ctx, "verification code resent", "username", username)
	return res, nil
}

func (f *registrationFlow) Abandon(ctx context.Context) error {
	f.Release(ctx)
	if err := f.opts.Store.ClearPending(ctx); err != nil {
		return fmt.Errorf("clear pending registration: %w", err)
	}
	return nil
}

func (f *registrationFlow) Release(ctx context.Context) {
	if f.channel == nil {
		return
	}
	release(ctx, f.opts.Logger, f.channel)
	f.channel = nil
}

func (f *registrationFlow) Pending(ctx context.Context) (string, error) {
	return f.opts.Store.Pending(ctx)
}

func (f *registrationFlow) requirePending(ctx context.Context, username string) error {
	pending, err := f.opts.Store.Pending(ctx)
	if err != nil {
		return fmt.Errorf("read pending registration: %w", err)
	}
	if pending == "" || pending != username {
		return fmt.Errorf("%w for %q", ErrNoPendingRegistration, username)
	}
	return nil
}

// take hands over the retained channel, or opens a fresh registrar channel.
func (f *registrationFlow) take(ctx context.Context) (client.Session, error) {
	if s := f.channel; s != nil {
		f.channel = nil
		return s, nil
	}
	s, err := f.opts.dialRegistrar(ctx)
	if err != nil {
		return nil, fmt.Errorf("open registrar session: %w", err)
	}
	return s, nil
}
