package gateway

import (
	"errors"
	"fmt"

	"github.com/liftmode/netcents-gateway/internal/secrets"
)

// Mode selects which stored credential pair is in effect.
type Mode string

const (
	// ModeTest resolves the sandbox credential pair.
	ModeTest Mode = "test"
	// ModeLive resolves the production credential pair.
	ModeLive Mode = "live"
)

// Credentials is one resolved accountID/authSecret pair. Immutable;
// resolved fresh for every gateway request.
type Credentials struct {
	AccountID  string
	AuthSecret string
	Mode       Mode
}

// CredentialSource resolves mode-dependent credentials, delegating
// decryption of the stored values to the secret store.
type CredentialSource struct {
	Mode           Mode
	TestAccountID  string
	TestAuthSecret string
	LiveAccountID  string
	LiveAuthSecret string
	Decrypter      secrets.Decrypter
}

// Resolve returns the decrypted credential pair for the configured mode.
func (s *CredentialSource) Resolve() (Credentials, error) {
	if s == nil {
		return Credentials{}, errors.New("gateway: credential source not configured")
	}
	dec := s.Decrypter
	if dec == nil {
		dec = secrets.Plaintext{}
	}
	accountID, authSecret := s.LiveAccountID, s.LiveAuthSecret
	mode := ModeLive
	if s.Mode != ModeLive {
		accountID, authSecret = s.TestAccountID, s.TestAuthSecret
		mode = ModeTest
	}
	if accountID == "" || authSecret == "" {
		return Credentials{}, fmt.Errorf("gateway: no %s credentials configured", mode)
	}
	id, err := dec.Decrypt(accountID)
	if err != nil {
		return Credentials{}, fmt.Errorf("gateway: decrypt account id: %w", err)
	}
	secret, err := dec.Decrypt(authSecret)
	if err != nil {
		return Credentials{}, fmt.Errorf("gateway: decrypt auth secret: %w", err)
	}
	return Credentials{AccountID: id, AuthSecret: secret, Mode: mode}, nil
}
