package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/deskauth/internal/client/services"
	"github.com/dmitrijs2005/deskauth/internal/cryptox"
	"github.com/fatih/color"
)

// Forgot requests a password reset code for an email address.
func (a *App) Forgot(ctx context.Context) error {
	email, err := a.prompt("Enter email")
	if err != nil {
		return err
	}
	if _, err := a.authService.ForgotPassword(ctx, email); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "If the address is registered, a reset code is on its way. Continue with 'reset'.")
	return nil
}

// Reset sets a new password using the emailed code.
func (a *App) Reset(ctx context.Context) error {
	email, err := a.prompt("Enter email")
	if err != nil {
		return err
	}
	code, err := a.prompt("Enter the reset code")
	if err != nil {
		return err
	}
	password, err := a.readPasswordString("Enter new password")
	if err != nil {
		return err
	}

	if _, err := a.authService.ResetPassword(ctx, email, password, code); err != nil {
		return err
	}

	fmt.Fprintln(a.out, color.GreenString("Password changed. You can 'login' now."))
	return nil
}

// WhoAmI prints the current profile.
func (a *App) WhoAmI(ctx context.Context) error {
	u := a.authService.CurrentUser()
	if u == nil {
		return services.ErrNoSession
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id:\t%s\n", u.ID)
	if u.Username != "" {
		fmt.Fprintf(tw, "username:\t%s\n", u.Username)
	}
	if u.Name != "" {
		fmt.Fprintf(tw, "name:\t%s\n", u.Name)
	}
	if u.Email != "" {
		fmt.Fprintf(tw, "email:\t%s\n", u.Email)
	}
	fmt.Fprintf(tw, "state:\t%s\n", a.authService.State())
	if _, err := a.authService.Session(); err != nil {
		fmt.Fprintf(tw, "channel:\t%s\n", color.YellowString("offline"))
	} else {
		fmt.Fprintf(tw, "channel:\t%s\n", color.GreenString("open"))
	}
	return tw.Flush()
}

// Devices lists the device keys held on this machine with their SSH-style
// fingerprints. The entry of the current user is starred.
func (a *App) Devices(ctx context.Context) error {
	entries, err := a.store.Devices(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No device keys stored")
		return nil
	}

	var current string
	if u := a.authService.CurrentUser(); u != nil {
		current = string(u.ID)
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " \tUSER\tDEVICE\tFINGERPRINT\tCREATED")
	for _, e := range entries {
		mark := " "
		if string(e.UserID) == current {
			mark = color.CyanString("*")
		}

		fp := color.RedString("invalid key")
		if pub, err := cryptox.PublicKeyHex(e.Credential.PrivateKey); err == nil {
			if f, err := cryptox.Fingerprint(pub); err == nil {
				fp = f
			}
		}

		created := "-"
		if !e.Credential.CreatedAt.IsZero() {
			created = e.Credential.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, e.UserID, e.Credential.DeviceID, fp, created)
	}
	return tw.Flush()
}

// Wipe deletes every piece of local state after a typed confirmation: the
// profile, the pending registration and all device keys. Open channels are
// closed first.
func (a *App) Wipe(ctx context.Context) error {
	answer, err := a.prompt("Type 'yes' to delete all local state and device keys")
	if err != nil {
		return err
	}
	if answer != "yes" {
		fmt.Fprintln(a.out, "Nothing deleted")
		return nil
	}

	a.authService.Logout(ctx)
	a.authService.Registration().Release(ctx)
	if err := a.store.Wipe(ctx); err != nil {
		return err
	}
	a.log.Info(ctx, "local state wiped")
	fmt.Fprintln(a.out, color.YellowString("Local state wiped. Device keys must be provisioned again."))
	return nil
}

// ForgetDevice deletes the device key of the current user; the next login
// provisions a new one.
func (a *App) ForgetDevice(ctx context.Context) error {
	if err := a.authService.ForgetDevice(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Device key removed. The next login registers a new one.")
	return nil
}
