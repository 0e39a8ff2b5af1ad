package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Session is one authenticated remote connection. It is owned by exactly one
// flow at a time; whoever owns it must Close it.
type Session interface {
	Call(ctx context.Context, procedure string, args []any, kwargs map[string]any) (*Result, error)
	Close(ctx context.Context) error
}

// Dialer opens Sessions using one of the two authentication modes.
type Dialer interface {
	// DialCRA authenticates with a shared secret (challenge-response).
	DialCRA(ctx context.Context, authID, secret string) (Session, error)
	// DialCryptosign authenticates by signing the router's challenge with a
	// hex-encoded Ed25519 private key.
	DialCryptosign(ctx context.Context, authID, privateKey string) (Session, error)
}

// Result is the reply to a Call.
type Result struct {
	Args   []any
	Kwargs map[string]any
}

// Payload returns the conventional payload: the first positional element
// when there is one, the keyword map otherwise.
func (r *Result) Payload() any {
	switch {
	case r == nil:
		return nil
	case len(r.Args) > 0:
		return r.Args[0]
	case len(r.Kwargs) > 0:
		return r.Kwargs
	default:
		return nil
	}
}

// DecodePayload converts the payload into v via its JSON form.
func (r *Result) DecodePayload(v any) error {
	p := r.Payload()
	if p == nil {
		return ErrEmptyResult
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// decodeValue unmarshals raw keeping numbers as json.Number so large ids
// survive the round trip.
func decodeValue(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
