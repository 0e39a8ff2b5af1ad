package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Verify(ctx context.Context) error
	Resend(ctx context.Context) error
	Abandon(ctx context.Context) error
	Login(ctx context.Context) error
	Guest(ctx context.Context) error
	Forgot(ctx context.Context) error
	Reset(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Devices(ctx context.Context) error
	ForgetDevice(ctx context.Context) error
	Wipe(ctx context.Context) error
	Logout(ctx context.Context) error
}

const (
	helpAnonymous     = "Available commands: register, verify, resend, abandon, login, guest, forgot, reset, devices, wipe, exit"
	helpAuthenticated = "Available commands: whoami, devices, forget-device, logout, wipe, exit"
)

// runREPL starts a simple read–eval–print loop for the deskauth CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - register       create an account and request a verification code
//	  - verify         submit the verification code
//	  - resend         request a new verification code
//	  - abandon        forget the pending registration
//	  - login          authenticate with username and password
//	  - guest          create a guest account and log into it
//	  - forgot         request a password reset code
//	  - reset          set a new password with the reset code
//
//	Logged in:
//	  - whoami         show the current profile
//	  - forget-device  delete this machine's device key for the current user
//	  - logout         end the session
//
//	Always:
//	  - help, devices, exit | quit
//	  - wipe           delete all local state, device keys included
//
// Handler errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("da %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpAuthenticated)
			} else {
				printlnFn(helpAnonymous)
			}

		case "register":
			err = a.Register(ctx)

		case "verify":
			err = a.Verify(ctx)

		case "resend":
			err = a.Resend(ctx)

		case "abandon":
			err = a.Abandon(ctx)

		case "login":
			err = a.Login(ctx)

		case "guest":
			err = a.Guest(ctx)

		case "forgot":
			err = a.Forgot(ctx)

		case "reset":
			err = a.Reset(ctx)

		case "whoami":
			err = a.WhoAmI(ctx)

		case "devices":
			err = a.Devices(ctx)

		case "forget-device":
			err = a.ForgetDevice(ctx)

		case "wipe":
			err = a.Wipe(ctx)

		case "logout":
			err = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn(color.RedString("Error: %v", err))
		}
	}
}
