// Package client contains the session-channel building blocks of deskauth.
//
// # Overview
//
//  1. A transport-agnostic contract (Session, Dialer) the authentication core
//     depends on: a channel is opened with either a shared secret
//     (challenge-response) or a private key (signature), offers a
//     request/response Call and an explicit Close.
//  2. A WAMP v2 implementation over WebSocket (WAMPDialer, WAMPSession)
//     supporting the wampcra and cryptosign authentication methods.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) applying the
//     embedded goose migrations to the SQLite store.
//
// # Error Handling
//
// Open failures wrap ErrUnavailable, rejected authentication matches
// ErrUnauthorized, remote call errors are *RemoteError values and calls on a
// finished session return ErrSessionClosed. Match with errors.Is / errors.As.
//
// # Concurrency
//
// A WAMPSession is safe for concurrent Calls. Close is idempotent.
package client
