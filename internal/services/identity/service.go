package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode"

	"olmcore/internal/cryptoerr"
	"olmcore/internal/domain"
	"olmcore/internal/pickle"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12

	pickleKind = "olm.account"
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
	// ErrNoAccount is returned before an account has been created.
	ErrNoAccount = errors.New("no local account; run init first")
	// ErrAccountExists is returned when creating over an existing account.
	ErrAccountExists = errors.New("an account already exists")
)

// Service loads, mutates and persists the local account.
type Service struct {
	store domain.AccountStore
	key   pickle.Key

	mu      sync.Mutex
	account *Account
}

// New returns an account service backed by the given store.
func New(s domain.AccountStore, key pickle.Key) *Service { return &Service{store: s, key: key} }

// Create generates a new account with n one-time keys and persists it.
func (s *Service) Create(
	ctx context.Context,
	user domain.UserID,
	device domain.DeviceID,
	n int,
) (*Account, domain.Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(ctx)
	if err != nil && !errors.Is(err, ErrNoAccount) {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", ErrAccountExists
	}

	acc, err := NewAccount(user, device)
	if err != nil {
		return nil, "", err
	}
	if err := acc.GenerateOneTimeKeys(n); err != nil {
		return nil, "", err
	}
	if err := s.save(ctx, acc); err != nil {
		return nil, "", err
	}
	return acc.Clone(), acc.Fingerprint(), nil
}

// Account returns a copy of the current account.
func (s *Service) Account(ctx context.Context) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

// Update applies fn to a copy of the account and persists the result. The in-memory
// account only changes once the store accepted the write.
func (s *Service) Update(ctx context.Context, fn func(*Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, err := s.load(ctx)
	if err != nil {
		return err
	}
	next := acc.Clone()
	if err := fn(next); err != nil {
		return err
	}
	return s.save(ctx, next)
}

// OneTimeKey looks up the private half of an unused one-time key.
func (s *Service) OneTimeKey(ctx context.Context, pub domain.Curve25519Public) (domain.Curve25519Private, error) {
	acc, err := s.Account(ctx)
	if err != nil {
		return domain.Curve25519Private{}, err
	}
	return acc.OneTimeKey(pub)
}

// ConsumeOneTimeKey removes pub and persists the account.
func (s *Service) ConsumeOneTimeKey(ctx context.Context, pub domain.Curve25519Public) error {
	return s.Update(ctx, func(a *Account) error { return a.RemoveOneTimeKey(pub) })
}

// Fingerprint returns a short fingerprint of the local signing key.
func (s *Service) Fingerprint(ctx context.Context) (domain.Fingerprint, error) {
	acc, err := s.Account(ctx)
	if err != nil {
		return "", err
	}
	return acc.Fingerprint(), nil
}

func (s *Service) load(ctx context.Context) (*Account, error) {
	if s.account != nil {
		return s.account, nil
	}
	rec, err := s.store.LoadAccount(ctx)
	if err != nil {
		return nil, cryptoerr.Store("load account", err)
	}
	if rec == nil {
		return nil, ErrNoAccount
	}
	var acc Account
	if err := pickle.Open(s.key, pickleKind, rec.Pickle, &acc); err != nil {
		return nil, fmt.Errorf("unpickle account: %w", err)
	}
	s.account = &acc
	return s.account, nil
}

func (s *Service) save(ctx context.Context, acc *Account) error {
	blob, err := pickle.Seal(s.key, pickleKind, acc)
	if err != nil {
		return err
	}
	rec := domain.AccountRecord{UserID: acc.UserID, DeviceID: acc.DeviceID, Pickle: blob}
	if err := s.store.SaveAccount(ctx, rec); err != nil {
		return cryptoerr.Store("save account", err)
	}
	s.account = acc
	return nil
}

// CheckPassphrase enforces a basic strength policy for the passphrase that wraps the
// pickle key.
func CheckPassphrase(passphrase string) error {
	if !isSecurePassphrase(passphrase) {
		return ErrWeakPassphrase
	}
	return nil
}

func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}
