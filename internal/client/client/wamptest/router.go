// Package wamptest runs an in-process WAMP router serving the deskconn
// account and device procedures over a real WebSocket. It is meant for tests.
package wamptest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/deskauth/internal/client/client"
	"github.com/dmitrijs2005/deskauth/internal/common"
	"github.com/dmitrijs2005/deskauth/internal/cryptox"
	"golang.org/x/net/websocket"
)

const (
	DefaultRealm  = "io.xconn.deskconn"
	DefaultPrefix = "io.xconn.deskconn"
	DefaultCode   = "000000"

	RoleRegistrar = "registrar"
	RoleUser      = "user"

	ErrInvalidArgument = "wamp.error.invalid_argument"
	ErrNotAuthorized   = "wamp.error.not_authorized"
	ErrAuthFailed      = "wamp.error.authentication_failed"
	ErrNoSuchRealm     = "wamp.error.no_such_realm"
	ErrNoSuchProcedure = "wamp.error.no_such_procedure"
)

// Options configure a Router. Zero values fall back to the package defaults.
type Options struct {
	Realm  string
	Prefix string
	Code   string

	RegistrarAuthID    string
	RegistrarPublicKey string

	// CRASalt, when set, makes wampcra challenges salted so clients must
	// derive the key with PBKDF2.
	CRASalt string
}

type Account struct {
	ID       int64
	Username string
	Name     string
	Email    string
	Kind     string
	Password string
	Verified bool
}

type Device struct {
	ID        string
	PublicKey string
	Name      string
	Username  string
}

// Join records one authentication attempt.
type Join struct {
	AuthID     string
	AuthMethod string
	Accepted   bool
}

type callError struct {
	uri string
	msg string
}

type peer struct {
	id      uint64
	authID  string
	role    string
	account *Account
}

// Router is a minimal WAMP router with dealer semantics limited to the
// deskconn procedures.
type Router struct {
	opts Options
	srv  *httptest.Server

	mu          sync.Mutex
	accounts    map[string]*Account
	devices     []Device
	nextUser    int64
	nextSession uint64
	joins       []Join
	calls       map[string]int
	resends     map[string]int
	active      int
	failures    map[string]string
	profiles    map[string]any
	replies     map[string]func(id uint64) []any
}

// New starts a Router on a local httptest server. Call Close when done.
func New(opts Options) *Router {
	if opts.Realm == "" {
		opts.Realm = DefaultRealm
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Code == "" {
		opts.Code = DefaultCode
	}

	r := &Router{
		opts:     opts,
		accounts: make(map[string]*Account),
		nextUser: 100,
		calls:    make(map[string]int),
		resends:  make(map[string]int),
		failures: make(map[string]string),
		profiles: make(map[string]any),
		replies:  make(map[string]func(id uint64) []any),
	}

	ws := websocket.Server{
		Handshake: func(cfg *websocket.Config, req *http.Request) error {
			for _, p := range cfg.Protocol {
				if p == client.Subprotocol {
					cfg.Protocol = []string{p}
					return nil
				}
			}
			return fmt.Errorf("unsupported subprotocol %v", cfg.Protocol)
		},
		Handler: r.serve,
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	r.srv = httptest.NewServer(mux)
	return r
}

// URL returns the ws:// address of the router endpoint.
func (r *Router) URL() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"
}

func (r *Router) Realm() string { return r.opts.Realm }

func (r *Router) Close() {
	r.srv.CloseClientConnections()
	r.srv.Close()
}

// AddAccount seeds an account. Missing ids are assigned.
func (r *Router) AddAccount(a Account) Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == 0 {
		r.nextUser++
		a.ID = r.nextUser
	}
	if a.Kind == "" {
		a.Kind = "user"
	}
	acc := a
	r.accounts[a.Username] = &acc
	return acc
}

func (r *Router) Account(username string) (Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[username]
	if !ok {
		return Account{}, false
	}
	return *a, true
}

// Devices returns the devices registered for username.
func (r *Router) Devices(username string) []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Device
	for _, d := range r.devices {
		if d.Username == username {
			out = append(out, d)
		}
	}
	return out
}

func (r *Router) Joins() []Join {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Join(nil), r.joins...)
}

// JoinsBy counts accepted joins for authID.
func (r *Router) JoinsBy(authID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.joins {
		if j.AuthID == authID && j.Accepted {
			n++
		}
	}
	return n
}

// Calls counts invocations of the procedure with the given suffix, e.g.
// "device.create".
func (r *Router) Calls(suffix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[suffix]
}

func (r *Router) Resends(username string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resends[username]
}

// ActiveSessions is the number of joined sessions not yet closed.
func (r *Router) ActiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// FailProcedure makes every call to suffix return an ERROR with uri.
func (r *Router) FailProcedure(suffix, uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[suffix] = uri
}

// OverrideProfile replaces the account.get payload returned to username.
func (r *Router) OverrideProfile(username string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[username] = payload
}

// OverrideReply makes calls to procedure suffix answer with the message
// built by reply, sent as is.
func (r *Router) OverrideReply(suffix string, reply func(id uint64) []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[suffix] = reply
}

func (r *Router) serve(conn *websocket.Conn) {
	defer conn.Close()

	p, ok := r.handshake(conn)
	if !ok {
		return
	}

	r.mu.Lock()
	r.active++
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.active--
		r.mu.Unlock()
	}()

	for {
		msg, code, err := receive(conn)
		if err != nil {
			return
		}
		switch code {
		case client.MsgCall:
			r.handleCall(conn, p, msg)
		case client.MsgGoodbye:
			_ = send(conn, []any{client.MsgGoodbye, map[string]any{}, "wamp.close.goodbye_and_out"})
			return
		}
	}
}

type helloDetails struct {
	AuthMethods []string       `json:"authmethods"`
	AuthID      string         `json:"authid"`
	AuthExtra   map[string]any `json:"authextra"`
}

func (r *Router) handshake(conn *websocket.Conn) (*peer, bool) {
	msg, code, err := receive(conn)
	if err != nil || code != client.MsgHello || len(msg) < 3 {
		return nil, false
	}

	var realm string
	var hello helloDetails
	if json.Unmarshal(msg[1], &realm) != nil || json.Unmarshal(msg[2], &hello) != nil {
		abort(conn, "wamp.error.protocol_violation")
		return nil, false
	}
	if realm != r.opts.Realm {
		abort(conn, ErrNoSuchRealm)
		return nil, false
	}

	method := ""
	if len(hello.AuthMethods) > 0 {
		method = hello.AuthMethods[0]
	}

	var p *peer
	switch method {
	case client.AuthMethodCryptosign:
		pub, _ := hello.AuthExtra["pubkey"].(string)
		p = r.authCryptosign(conn, hello.AuthID, pub)
	case client.AuthMethodCRA:
		p = r.authCRA(conn, hello.AuthID)
	default:
		abort(conn, "wamp.error.no_auth_method")
	}

	r.mu.Lock()
	r.joins = append(r.joins, Join{AuthID: hello.AuthID, AuthMethod: method, Accepted: p != nil})
	if p != nil {
		r.nextSession++
		p.id = r.nextSession
	}
	r.mu.Unlock()

	if p == nil {
		return nil, false
	}

	welcome := map[string]any{"authid": p.authID, "authrole": p.role, "authmethod": method}
	if err := send(conn, []any{client.MsgWelcome, p.id, welcome}); err != nil {
		return nil, false
	}
	return p, true
}

func (r *Router) authCryptosign(conn *websocket.Conn, authID, pubHex string) *peer {
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		abort(conn, ErrAuthFailed)
		return nil
	}

	p := r.cryptosignPrincipal(authID, pubHex)
	if p == nil {
		abort(conn, ErrAuthFailed)
		return nil
	}

	challenge, err := common.MakeRandHexString(32)
	if err != nil {
		abort(conn, ErrAuthFailed)
		return nil
	}
	if err := send(conn, []any{client.MsgChallenge, client.AuthMethodCryptosign, map[string]any{"challenge": challenge}}); err != nil {
		return nil
	}

	signature, ok := readAuthenticate(conn)
	if !ok || !cryptox.VerifyCryptosignSignature(ed25519.PublicKey(pub), challenge, signature) {
		abort(conn, ErrAuthFailed)
		return nil
	}
	return p
}

func (r *Router) cryptosignPrincipal(authID, pubHex string) *peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if authID == r.opts.RegistrarAuthID && r.opts.RegistrarAuthID != "" {
		if !strings.EqualFold(pubHex, r.opts.RegistrarPublicKey) {
			return nil
		}
		return &peer{authID: authID, role: RoleRegistrar}
	}

	acc := r.lookupLocked(authID)
	if acc == nil {
		return nil
	}
	for _, d := range r.devices {
		if d.Username == acc.Username && strings.EqualFold(d.PublicKey, pubHex) {
			return &peer{authID: authID, role: RoleUser, account: acc}
		}
	}
	return nil
}

func (r *Router) authCRA(conn *websocket.Conn, authID string) *peer {
	r.mu.Lock()
	acc := r.lookupLocked(authID)
	var password string
	if acc != nil {
		password = acc.Password
	}
	verified := acc != nil && acc.Verified
	r.mu.Unlock()

	if !verified {
		abort(conn, ErrAuthFailed)
		return nil
	}

	nonce, err := common.MakeRandHexString(16)
	if err != nil {
		abort(conn, ErrAuthFailed)
		return nil
	}
	challenge := fmt.Sprintf(`{"authid":%q,"authrole":"user","authmethod":"wampcra","authprovider":"static","nonce":%q,"timestamp":%q}`,
		authID, nonce, time.Now().UTC().Format(time.RFC3339))

	extra := map[string]any{"challenge": challenge}
	if r.opts.CRASalt != "" {
		extra["salt"] = r.opts.CRASalt
		extra["iterations"] = cryptox.CRADefaultIterations
		extra["keylen"] = cryptox.CRADefaultKeyLen
	}
	if err := send(conn, []any{client.MsgChallenge, client.AuthMethodCRA, extra}); err != nil {
		return nil
	}

	signature, ok := readAuthenticate(conn)
	key := cryptox.DeriveCRAKey(password, r.opts.CRASalt, cryptox.CRADefaultIterations, cryptox.CRADefaultKeyLen)
	expected := cryptox.SignCRAChallenge(key, challenge)
	if !ok || !hmac.Equal([]byte(signature), []byte(expected)) {
		abort(conn, ErrAuthFailed)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return &peer{authID: authID, role: RoleUser, account: r.lookupLocked(authID)}
}

// lookupLocked finds an account by username or email.
func (r *Router) lookupLocked(id string) *Account {
	if a, ok := r.accounts[id]; ok {
		return a
	}
	for _, a := range r.accounts {
		if a.Email != "" && a.Email == id {
			return a
		}
	}
	return nil
}

func (r *Router) handleCall(conn *websocket.Conn, p *peer, msg []json.RawMessage) {
	if len(msg) < 4 {
		return
	}
	var id uint64
	var procedure string
	if json.Unmarshal(msg[1], &id) != nil || json.Unmarshal(msg[3], &procedure) != nil {
		return
	}
	var args []any
	var kwargs map[string]any
	if len(msg) > 4 {
		_ = json.Unmarshal(msg[4], &args)
	}
	if len(msg) > 5 {
		_ = json.Unmarshal(msg[5], &kwargs)
	}

	r.mu.Lock()
	reply := r.replies[strings.TrimPrefix(procedure, r.opts.Prefix+".")]
	r.mu.Unlock()
	if reply != nil {
		_ = send(conn, reply(id))
		return
	}

	payload, cerr := r.dispatch(p, procedure, args, kwargs)
	if cerr != nil {
		_ = send(conn, []any{client.MsgError, client.MsgCall, id, map[string]any{}, cerr.uri, []any{cerr.msg}})
		return
	}
	if payload == nil {
		_ = send(conn, []any{client.MsgResult, id, map[string]any{}})
		return
	}
	_ = send(conn, []any{client.MsgResult, id, map[string]any{}, []any{payload}})
}

func (r *Router) dispatch(p *peer, procedure string, args []any, kwargs map[string]any) (any, *callError) {
	suffix, ok := strings.CutPrefix(procedure, r.opts.Prefix+".")
	if !ok {
		return nil, &callError{ErrNoSuchProcedure, procedure}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls[suffix]++
	if uri, ok := r.failures[suffix]; ok {
		return nil, &callError{uri, "forced failure"}
	}

	switch suffix {
	case "account.create":
		return r.createAccount(p, args)
	case "account.verify":
		return r.verifyAccount(p, args)
	case "account.otp.resend":
		return r.resendCode(p, args)
	case "account.get":
		return r.getAccount(p)
	case "account.password.forget":
		return r.forgetPassword(p, args)
	case "account.password.reset":
		return r.resetPassword(p, args)
	case "device.create":
		return r.createDevice(p, args, kwargs)
	default:
		return nil, &callError{ErrNoSuchProcedure, procedure}
	}
}

func requireRole(p *peer, role string) *callError {
	if p.role != role {
		return &callError{ErrNotAuthorized, "role " + p.role + " may not call this procedure"}
	}
	return nil
}

func stringArgs(args []any, n int) ([]string, *callError) {
	if len(args) < n {
		return nil, &callError{ErrInvalidArgument, fmt.Sprintf("expected %d arguments, got %d", n, len(args))}
	}
	out := make([]string, n)
	for i := range n {
		s, ok := args[i].(string)
		if !ok {
			return nil, &callError{ErrInvalidArgument, fmt.Sprintf("argument %d must be a string", i)}
		}
		out[i] = s
	}
	return out, nil
}

func (r *Router) createAccount(p *peer, args []any) (any, *callError) {
	if cerr := requireRole(p, RoleRegistrar); cerr != nil {
		return nil, cerr
	}
	a, cerr := stringArgs(args, 4)
	if cerr != nil {
		return nil, cerr
	}
	username, name, kind, password := a[0], a[1], a[2], a[3]
	if kind != "user" && kind != "guest" {
		return nil, &callError{ErrInvalidArgument, "unknown account kind " + kind}
	}
	if _, exists := r.accounts[username]; exists {
		return nil, &callError{ErrInvalidArgument, "account already exists"}
	}

	r.nextUser++
	acc := &Account{
		ID:       r.nextUser,
		Username: username,
		Name:     name,
		Kind:     kind,
		Password: password,
		Verified: kind == "guest",
	}
	if strings.Contains(username, "@") {
		acc.Email = username
	}
	r.accounts[username] = acc
	return map[string]any{"id": acc.ID, "username": acc.Username}, nil
}

func (r *Router) verifyAccount(p *peer, args []any) (any, *callError) {
	if cerr := requireRole(p, RoleRegistrar); cerr != nil {
		return nil, cerr
	}
	a, cerr := stringArgs(args, 2)
	if cerr != nil {
		return nil, cerr
	}
	acc, ok := r.accounts[a[0]]
	if !ok {
		return nil, &callError{ErrInvalidArgument, "unknown account"}
	}
	if a[1] != r.opts.Code {
		return nil, &callError{ErrInvalidArgument, "invalid verification code"}
	}
	acc.Verified = true
	return map[string]any{"verified": true}, nil
}

func (r *Router) resendCode(p *peer, args []any) (any, *callError) {
	if cerr := requireRole(p, RoleRegistrar); cerr != nil {
		return nil, cerr
	}
	a, cerr := stringArgs(args, 1)
	if cerr != nil {
		return nil, cerr
	}
	if _, ok := r.accounts[a[0]]; !ok {
		return nil, &callError{ErrInvalidArgument, "unknown account"}
	}
	r.resends[a[0]]++
	return nil, nil
}

func (r *Router) getAccount(p *peer) (any, *callError) {
	if cerr := requireRole(p, RoleUser); cerr != nil {
		return nil, cerr
	}
	if override, ok := r.profiles[p.account.Username]; ok {
		return override, nil
	}
	acc := p.account
	return map[string]any{
		"id":       acc.ID,
		"username": acc.Username,
		"name":     acc.Name,
		"email":    acc.Email,
		"kind":     acc.Kind,
	}, nil
}

func (r *Router) forgetPassword(p *peer, args []any) (any, *callError) {
	if cerr := requireRole(p, RoleRegistrar); cerr != nil {
		return nil, cerr
	}
	a, cerr := stringArgs(args, 1)
	if cerr != nil {
		return nil, cerr
	}
	if r.lookupLocked(a[0]) == nil {
		return nil, &callError{ErrInvalidArgument, "unknown account"}
	}
	return map[string]any{"sent": true}, nil
}

func (r *Router) resetPassword(p *peer, args []any) (any, *callError) {
	if cerr := requireRole(p, RoleRegistrar); cerr != nil {
		return nil, cerr
	}
	a, cerr := stringArgs(args, 3)
	if cerr != nil {
		return nil, cerr
	}
	acc := r.lookupLocked(a[0])
	if acc == nil {
		return nil, &callError{ErrInvalidArgument, "unknown account"}
	}
	if a[2] != r.opts.Code {
		return nil, &callError{ErrInvalidArgument, "invalid code"}
	}
	acc.Password = a[1]
	return map[string]any{"reset": true}, nil
}

func (r *Router) createDevice(p *peer, args []any, kwargs map[string]any) (any, *callError) {
	if cerr := requireRole(p, RoleUser); cerr != nil {
		return nil, cerr
	}
	a, cerr := stringArgs(args, 2)
	if cerr != nil {
		return nil, cerr
	}
	for _, d := range r.devices {
		if d.ID == a[0] {
			return nil, &callError{ErrInvalidArgument, "device already exists"}
		}
	}
	name, _ := kwargs["name"].(string)
	r.devices = append(r.devices, Device{
		ID:        a[0],
		PublicKey: a[1],
		Name:      name,
		Username:  p.account.Username,
	})
	return map[string]any{"device_id": a[0]}, nil
}

func send(conn *websocket.Conn, msg []any) error {
	return websocket.JSON.Send(conn, msg)
}

func receive(conn *websocket.Conn) ([]json.RawMessage, int, error) {
	var msg []json.RawMessage
	if err := websocket.JSON.Receive(conn, &msg); err != nil {
		return nil, 0, err
	}
	if len(msg) == 0 {
		return nil, 0, fmt.Errorf("empty message")
	}
	var code int
	if err := json.Unmarshal(msg[0], &code); err != nil {
		return nil, 0, err
	}
	return msg, code, nil
}

func abort(conn *websocket.Conn, reason string) {
	_ = send(conn, []any{client.MsgAbort, map[string]any{}, reason})
}

func readAuthenticate(conn *websocket.Conn) (string, bool) {
	msg, code, err := receive(conn)
	if err != nil || code != client.MsgAuthenticate || len(msg) < 2 {
		return "", false
	}
	var signature string
	if err := json.Unmarshal(bytes.TrimSpace(msg[1]), &signature); err != nil {
		return "", false
	}
	return signature, true
}
