package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/deskauth/internal/client/models"
	"github.com/dmitrijs2005/deskauth/internal/client/services"
	"github.com/dmitrijs2005/deskauth/internal/common"
	"github.com/fatih/color"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

var errEmptyInput = errors.New("input must not be empty")

// prompt reads one non-empty line.
func (a *App) prompt(label string) (string, error) {
	v, err := getSimpleText(a.reader, label, a.out)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("%s: %w", strings.ToLower(label), errEmptyInput)
	}
	return v, nil
}

// readPasswordString reads a password without echo. The terminal buffer is
// wiped before returning.
func (a *App) readPasswordString(label string) (string, error) {
	pw, err := getPassword(a.out, label)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	if len(pw) == 0 {
		return "", fmt.Errorf("password: %w", errEmptyInput)
	}
	return string(pw), nil
}

// Register prompts for username, display name and password and creates an
// account. The server sends a verification code; the account stays pending
// until Verify.
func (a *App) Register(ctx context.Context) error {
	username, err := a.prompt("Enter username or email")
	if err != nil {
		return err
	}
	name, err := a.prompt("Enter your name")
	if err != nil {
		return err
	}
	password, err := a.readPasswordString("Enter password")
	if err != nil {
		return err
	}

	if _, err := a.authService.Registration().CreateAccount(ctx, username, name, password, models.AccountUser); err != nil {
		return err
	}

	fmt.Fprintln(a.out, color.GreenString("Account created. Enter the code we sent you with 'verify'."))
	return nil
}

// pendingUsername returns the username of the pending registration.
func (a *App) pendingUsername(ctx context.Context) (string, error) {
	username, err := a.authService.Registration().Pending(ctx)
	if err != nil {
		return "", err
	}
	if username == "" {
		return "", services.ErrNoPendingRegistration
	}
	return username, nil
}

// Verify submits the verification code for the pending registration.
func (a *App) Verify(ctx context.Context) error {
	username, err := a.pendingUsername(ctx)
	if err != nil {
		return err
	}
	code, err := a.prompt(fmt.Sprintf("Enter the verification code for %s", username))
	if err != nil {
		return err
	}

	if _, err := a.authService.Registration().Verify(ctx, username, code); err != nil {
		return err
	}

	fmt.Fprintln(a.out, color.GreenString("Account verified. You can 'login' now."))
	return nil
}

// Resend asks the server to send a new verification code.
func (a *App) Resend(ctx context.Context) error {
	username, err := a.pendingUsername(ctx)
	if err != nil {
		return err
	}
	if _, err := a.authService.Registration().ResendCode(ctx, username); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "A new code was sent for %s\n", username)
	return nil
}

// Abandon forgets the pending registration.
func (a *App) Abandon(ctx context.Context) error {
	if err := a.authService.Registration().Abandon(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Pending registration discarded")
	return nil
}

// Login prompts for credentials and authenticates with them. On the first
// login from this machine a device key is provisioned for later auto-login.
func (a *App) Login(ctx context.Context) error {
	username, err := a.prompt("Enter username or email")
	if err != nil {
		return err
	}
	password, err := a.readPasswordString("Enter password")
	if err != nil {
		return err
	}

	if err := a.authService.Login(ctx, username, password); err != nil {
		return err
	}

	fmt.Fprintln(a.out, color.GreenString("Logged in as %s", a.authService.CurrentUser().DisplayName()))
	return nil
}

// Guest creates a throwaway account and logs into it.
func (a *App) Guest(ctx context.Context) error {
	if err := a.authService.LoginAsGuest(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, color.GreenString("Logged in as %s", a.authService.CurrentUser().DisplayName()))
	return nil
}

// Logout drops the session and the stored profile. Device keys are kept.
func (a *App) Logout(ctx context.Context) error {
	a.authService.Logout(ctx)
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
