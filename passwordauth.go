package mq

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordAuthenticator is a ready-made Authenticator for brokers that run
// MQTT v5 enhanced authentication as a bcrypt-hashed credential challenge
// instead of plain username/password on CONNECT: the client sends a bcrypt
// hash of the password as its initial data, and any further AUTH challenge
// from the server is treated as a rejection since this method is one-shot.
type PasswordAuthenticator struct {
	username string
	password string
	cost     int
}

// NewPasswordAuthenticator builds a PasswordAuthenticator for username with
// the given plaintext password. cost is the bcrypt work factor; pass 0 to
// use bcrypt.DefaultCost.
func NewPasswordAuthenticator(username, password string, cost int) *PasswordAuthenticator {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &PasswordAuthenticator{username: username, password: password, cost: cost}
}

func (p *PasswordAuthenticator) Method() string {
	return "PASSWORD-BCRYPT"
}

// InitialData hashes the password with a fresh bcrypt salt on every call, so
// two CONNECT attempts (e.g. an initial connect followed by a reconnect)
// never send the same bytes over the wire.
func (p *PasswordAuthenticator) InitialData() ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(p.password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("passwordauth: hash password: %w", err)
	}
	return append([]byte(p.username+"\x00"), hash...), nil
}

// HandleChallenge always fails: this method completes in one round trip, so
// a server AUTH challenge after CONNECT means the server didn't accept the
// initial hash.
func (p *PasswordAuthenticator) HandleChallenge(_ []byte, reasonCode uint8) ([]byte, error) {
	return nil, fmt.Errorf("passwordauth: unexpected challenge (reason code 0x%02x)", reasonCode)
}

func (p *PasswordAuthenticator) Complete() error {
	return nil
}
