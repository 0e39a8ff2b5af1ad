// Package models holds the client-side data model: the user profile returned
// by the remote system, device credentials and account kinds.
package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// UserID is the remote user identifier. The remote side may send it as a
// JSON string or number; it is always kept and re-encoded as a string.
type UserID string

func (id *UserID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %s", string(b))
	}
	*id = UserID(n.String())
	return nil
}

func (id UserID) String() string { return string(id) }

// UserProfile is the "current user" record. Fields the client does not know
// are preserved in Extra and written back unchanged.
type UserProfile struct {
	ID       UserID
	Username string
	Name     string
	Email    string
	Extra    map[string]json.RawMessage
}

type profileFields struct {
	ID       UserID `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

var knownProfileKeys = []string{"id", "username", "name", "email"}

func (p UserProfile) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+4)
	for k, v := range p.Extra {
		out[k] = v
	}
	known, err := json.Marshal(profileFields{ID: p.ID, Username: p.Username, Name: p.Name, Email: p.Email})
	if err != nil {
		return nil, err
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return nil, err
	}
	for k, v := range knownMap {
		out[k] = v
	}
	return json.Marshal(out)
}

func (p *UserProfile) UnmarshalJSON(b []byte) error {
	var f profileFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for _, k := range knownProfileKeys {
		delete(all, k)
	}
	*p = UserProfile{ID: f.ID, Username: f.Username, Name: f.Name, Email: f.Email}
	if len(all) > 0 {
		p.Extra = all
	}
	return nil
}

// Valid reports whether the profile carries a usable identifier. The remote
// side sends 0 for a missing numeric id, so "0" counts as absent.
func (p *UserProfile) Valid() bool {
	if p == nil {
		return false
	}
	id := strings.TrimSpace(string(p.ID))
	return id != "" && id != "0"
}

// Clone returns a deep copy.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Extra = maps.Clone(p.Extra)
	return &c
}

// DisplayName prefers the name, then the username, then the id.
func (p *UserProfile) DisplayName() string {
	switch {
	case p == nil:
		return ""
	case p.Name != "":
		return p.Name
	case p.Username != "":
		return p.Username
	default:
		return string(p.ID)
	}
}

// IdentityField selects which profile field identifies the user when
// re-authenticating with a device key.
type IdentityField string

const (
	IdentityUsernameOrEmail IdentityField = "username_or_email"
	IdentityEmail           IdentityField = "email"
)

// ParseIdentityField accepts the configuration spelling of an IdentityField.
func ParseIdentityField(s string) (IdentityField, error) {
	switch f := IdentityField(strings.ToLower(strings.TrimSpace(s))); f {
	case "", IdentityUsernameOrEmail:
		return IdentityUsernameOrEmail, nil
	case IdentityEmail:
		return IdentityEmail, nil
	default:
		return "", fmt.Errorf("unknown identity field %q", s)
	}
}

// Identity returns the authentication identity for field, or "" when the
// profile lacks it.
func (p *UserProfile) Identity(field IdentityField) string {
	if p == nil {
		return ""
	}
	if field == IdentityEmail {
		return p.Email
	}
	if p.Username != "" {
		return p.Username
	}
	return p.Email
}
