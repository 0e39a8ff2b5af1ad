// Package cli provides the interactive deskauth command-line client.
//
// It wires configuration, the local credential store (SQLite, Redis or
// memory), the WAMP dialer and the auth services into a REPL. On start the
// persisted profile is restored and a device-key auto-login is attempted.
//
// Key features:
//   - register / verify / resend / abandon for email-verified sign-up
//   - login with username and password, guest accounts
//   - forgot / reset for password recovery
//   - whoami, devices (with key fingerprints), forget-device, logout
//   - wipe to delete all local state
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
