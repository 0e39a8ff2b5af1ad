package models

import "time"

// DeviceCredential is the locally held half of a device identity, stored per
// user id. It is written once and never updated.
type DeviceCredential struct {
	DeviceID   string    `json:"deviceId"`
	PrivateKey string    `json:"privateKey"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
}

// AccountKind is sent to account.create.
type AccountKind string

const (
	AccountUser  AccountKind = "user"
	AccountGuest AccountKind = "guest"
)
