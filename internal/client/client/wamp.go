package client

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/deskauth/internal/cryptox"
	"github.com/dmitrijs2005/deskauth/internal/logging"
	"golang.org/x/net/websocket"
)

// Subprotocol is the WebSocket subprotocol negotiated with the router.
const Subprotocol = "wamp.2.json"

// WAMP v2 message codes used by a caller.
const (
	MsgHello        = 1
	MsgWelcome      = 2
	MsgAbort        = 3
	MsgChallenge    = 4
	MsgAuthenticate = 5
	MsgGoodbye      = 6
	MsgError        = 8
	MsgCall         = 48
	MsgResult       = 50
)

const (
	AuthMethodCRA        = "wampcra"
	AuthMethodCryptosign = "cryptosign"

	closeRealm    = "wamp.close.close_realm"
	goodbyeAndOut = "wamp.close.goodbye_and_out"

	defaultOrigin    = "http://localhost/"
	defaultCloseWait = 2 * time.Second
)

// WAMPDialer opens WAMP sessions on a single router URL and realm.
type WAMPDialer struct {
	URL     string
	Realm   string
	Origin  string
	Timeout time.Duration
	Logger  logging.Logger
}

var _ Dialer = (*WAMPDialer)(nil)

// NewWAMPDialer returns a dialer for realm at url. timeout bounds each
// handshake; zero leaves it to ctx.
func NewWAMPDialer(url, realm string, timeout time.Duration, log logging.Logger) *WAMPDialer {
	return &WAMPDialer{URL: url, Realm: realm, Timeout: timeout, Logger: log}
}

func (d *WAMPDialer) DialCRA(ctx context.Context, authID, secret string) (Session, error) {
	return d.dial(ctx, authID, AuthMethodCRA, nil, func(extra map[string]any) (string, error) {
		challenge, _ := extra["challenge"].(string)
		if challenge == "" {
			return "", fmt.Errorf("%w: wampcra challenge without payload", ErrProtocol)
		}
		salt, _ := extra["salt"].(string)
		key := cryptox.DeriveCRAKey(secret, salt, intValue(extra["iterations"]), intValue(extra["keylen"]))
		return cryptox.SignCRAChallenge(key, challenge), nil
	})
}

func (d *WAMPDialer) DialCryptosign(ctx context.Context, authID, privateKey string) (Session, error) {
	priv, err := cryptox.DecodePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	pub := hex.EncodeToString(priv.Public().(ed25519.PublicKey))

	return d.dial(ctx, authID, AuthMethodCryptosign, map[string]any{"pubkey": pub}, func(extra map[string]any) (string, error) {
		challenge, _ := extra["challenge"].(string)
		if challenge == "" {
			return "", fmt.Errorf("%w: cryptosign challenge without payload", ErrProtocol)
		}
		return cryptox.SignCryptosignChallenge(priv, challenge)
	})
}

type signFunc func(extra map[string]any) (string, error)

func (d *WAMPDialer) dial(ctx context.Context, authID, method string, authExtra map[string]any, sign signFunc) (Session, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	origin := d.Origin
	if origin == "" {
		origin = defaultOrigin
	}
	cfg, err := websocket.NewConfig(d.URL, origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	cfg.Protocol = []string{Subprotocol}

	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, d.URL, err)
	}

	s := newWAMPSession(conn, d.logger())
	if err := s.join(ctx, d.Realm, authID, method, authExtra, sign); err != nil {
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: join %s: %w", ErrUnavailable, d.Realm, ctxErr)
		}
		return nil, err
	}

	go s.readLoop()

	s.log.Debug(ctx, "wamp session opened", "session", s.id, "authid", authID, "authmethod", method)
	return s, nil
}

func (d *WAMPDialer) logger() logging.Logger {
	if d.Logger == nil {
		return logging.NewNop()
	}
	return d.Logger
}

type reply struct {
	result *Result
	err    error
}

// WAMPSession is a joined WAMP session acting as a caller.
type WAMPSession struct {
	conn *websocket.Conn
	log  logging.Logger
	id   uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan reply

	closing   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ Session = (*WAMPSession)(nil)

func newWAMPSession(conn *websocket.Conn, log logging.Logger) *WAMPSession {
	return &WAMPSession{
		conn:    conn,
		log:     log,
		pending: make(map[uint64]chan reply),
		done:    make(chan struct{}),
	}
}

// ID returns the router-assigned session id.
func (s *WAMPSession) ID() uint64 { return s.id }

func (s *WAMPSession) send(msg []any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return websocket.JSON.Send(s.conn, msg)
}

func (s *WAMPSession) receive() ([]json.RawMessage, int, error) {
	var msg []json.RawMessage
	if err := websocket.JSON.Receive(s.conn, &msg); err != nil {
		return nil, 0, err
	}
	if len(msg) == 0 {
		return nil, 0, fmt.Errorf("%w: empty message", ErrProtocol)
	}
	var code int
	if err := json.Unmarshal(msg[0], &code); err != nil {
		return nil, 0, fmt.Errorf("%w: message type: %v", ErrProtocol, err)
	}
	return msg, code, nil
}

// join performs HELLO, the optional CHALLENGE/AUTHENTICATE round and waits
// for WELCOME or ABORT.
func (s *WAMPSession) join(ctx context.Context, realm, authID, method string, authExtra map[string]any, sign signFunc) error {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	details := map[string]any{
		"roles":       map[string]any{"caller": map[string]any{}},
		"authmethods": []string{method},
		"authid":      authID,
	}
	if authExtra != nil {
		details["authextra"] = authExtra
	}
	if err := s.send([]any{MsgHello, realm, details}); err != nil {
		return fmt.Errorf("%w: hello: %v", ErrUnavailable, err)
	}

	for {
		msg, code, err := s.receive()
		if err != nil {
			if errors.Is(err, ErrProtocol) {
				return err
			}
			return fmt.Errorf("%w: join %s: %v", ErrUnavailable, realm, err)
		}

		switch code {
		case MsgWelcome:
			if len(msg) < 2 {
				return fmt.Errorf("%w: short WELCOME", ErrProtocol)
			}
			if err := json.Unmarshal(msg[1], &s.id); err != nil {
				return fmt.Errorf("%w: session id: %v", ErrProtocol, err)
			}
			return nil

		case MsgChallenge:
			var extra map[string]any
			if len(msg) > 2 {
				if err := decodeValue(msg[2], &extra); err != nil {
					return fmt.Errorf("%w: challenge extra: %v", ErrProtocol, err)
				}
			}
			signature, err := sign(extra)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrUnauthorized, err)
			}
			if err := s.send([]any{MsgAuthenticate, signature, map[string]any{}}); err != nil {
				return fmt.Errorf("%w: authenticate: %v", ErrUnavailable, err)
			}

		case MsgAbort:
			rerr := &RemoteError{}
			if len(msg) > 2 {
				_ = json.Unmarshal(msg[2], &rerr.URI)
			}
			if len(msg) > 1 {
				_ = decodeValue(msg[1], &rerr.Kwargs)
			}
			return fmt.Errorf("join %s: %w", realm, rerr)

		default:
			return fmt.Errorf("%w: unexpected message %d while joining", ErrProtocol, code)
		}
	}
}

// Call invokes procedure and waits for its RESULT or ERROR.
func (s *WAMPSession) Call(ctx context.Context, procedure string, args []any, kwargs map[string]any) (*Result, error) {
	select {
	case <-s.done:
		return nil, ErrSessionClosed
	default:
	}

	ch := make(chan reply, 1)
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.pending[id] = ch
	s.mu.Unlock()

	msg := []any{MsgCall, id, map[string]any{}, procedure}
	if len(args) > 0 || len(kwargs) > 0 {
		if args == nil {
			args = []any{}
		}
		msg = append(msg, args)
	}
	if len(kwargs) > 0 {
		msg = append(msg, kwargs)
	}

	if err := s.send(msg); err != nil {
		s.forget(id)
		return nil, fmt.Errorf("%w: call %s: %v", ErrUnavailable, procedure, err)
	}

	select {
	case r := <-ch:
		return r.result, r.err
	case <-s.done:
		s.forget(id)
		return nil, ErrSessionClosed
	case <-ctx.Done():
		s.forget(id)
		return nil, ctx.Err()
	}
}

func (s *WAMPSession) forget(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *WAMPSession) deliver(id uint64, r reply) {
	s.mu.Lock()
	ch, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	if !ok {
		s.log.Debug(context.Background(), "reply for unknown request", "request", id)
		return
	}
	ch <- r
}

// fail hands a decode error to the caller waiting on id. Request ids start
// at 1, so 0 means the id itself was unreadable.
func (s *WAMPSession) fail(id uint64, err error) {
	if id == 0 {
		return
	}
	s.deliver(id, reply{err: err})
}

func (s *WAMPSession) readLoop() {
	defer close(s.done)

	for {
		msg, code, err := s.receive()
		if err != nil {
			if !s.closing.Load() {
				s.log.Warn(context.Background(), "wamp session lost", "session", s.id, "error", err)
			}
			return
		}

		switch code {
		case MsgResult:
			id, res, err := parseResult(msg)
			if err != nil {
				s.log.Warn(context.Background(), "bad RESULT", "request", id, "error", err)
				s.fail(id, err)
				continue
			}
			s.deliver(id, reply{result: res})

		case MsgError:
			id, rerr, err := parseError(msg)
			if err != nil {
				s.log.Warn(context.Background(), "bad ERROR", "request", id, "error", err)
				s.fail(id, err)
				continue
			}
			s.deliver(id, reply{err: rerr})

		case MsgGoodbye:
			if !s.closing.Load() {
				_ = s.send([]any{MsgGoodbye, map[string]any{}, goodbyeAndOut})
			}
			return

		case MsgAbort:
			return

		default:
			s.log.Debug(context.Background(), "ignoring message", "type", code)
		}
	}
}

// Close says GOODBYE, waits briefly for the router's reply and closes the
// connection. Subsequent calls return the first result.
func (s *WAMPSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)

		var err error
		select {
		case <-s.done:
		default:
			err = s.send([]any{MsgGoodbye, map[string]any{}, closeRealm})
			if err == nil {
				timer := time.NewTimer(defaultCloseWait)
				select {
				case <-s.done:
				case <-ctx.Done():
				case <-timer.C:
				}
				timer.Stop()
			}
		}

		_ = s.conn.Close()
		if err != nil {
			s.closeErr = fmt.Errorf("goodbye: %w", err)
		}
		s.log.Debug(ctx, "wamp session closed", "session", s.id)
	})
	return s.closeErr
}

func parseResult(msg []json.RawMessage) (uint64, *Result, error) {
	if len(msg) < 3 {
		return 0, nil, fmt.Errorf("%w: short RESULT", ErrProtocol)
	}
	var id uint64
	if err := json.Unmarshal(msg[1], &id); err != nil {
		return 0, nil, fmt.Errorf("%w: request id: %v", ErrProtocol, err)
	}
	res := &Result{}
	if len(msg) > 3 {
		if err := decodeValue(msg[3], &res.Args); err != nil {
			return id, nil, fmt.Errorf("%w: result args: %v", ErrProtocol, err)
		}
	}
	if len(msg) > 4 {
		if err := decodeValue(msg[4], &res.Kwargs); err != nil {
			return id, nil, fmt.Errorf("%w: result kwargs: %v", ErrProtocol, err)
		}
	}
	return id, res, nil
}

// parseError reads [ERROR, CALL, id, details, uri, args?, kwargs?].
func parseError(msg []json.RawMessage) (uint64, *RemoteError, error) {
	if len(msg) < 5 {
		return 0, nil, fmt.Errorf("%w: short ERROR", ErrProtocol)
	}
	var id uint64
	if err := json.Unmarshal(msg[2], &id); err != nil {
		return 0, nil, fmt.Errorf("%w: request id: %v", ErrProtocol, err)
	}
	rerr := &RemoteError{}
	if err := json.Unmarshal(msg[4], &rerr.URI); err != nil {
		return id, nil, fmt.Errorf("%w: error uri: %v", ErrProtocol, err)
	}
	if len(msg) > 5 {
		_ = decodeValue(msg[5], &rerr.Args)
	}
	if len(msg) > 6 {
		_ = decodeValue(msg[6], &rerr.Kwargs)
	}
	return id, rerr, nil
}

// intValue reads an integer from a decoded JSON value, 0 when absent.
func intValue(v any) int {
	switch n := v.(type) {
	case json.Number:
		i, _ := strconv.Atoi(n.String())
		return i
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
