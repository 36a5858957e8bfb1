package authcore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/password"
)

// MemoryAccountStore keeps accounts in process memory. Usernames, emails and
// wallet addresses are matched case-insensitively.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	byID     map[string]*Account
	byName   map[string]string
	byEmail  map[string]string
	byWallet map[string]string
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		byID:     make(map[string]*Account),
		byName:   make(map[string]string),
		byEmail:  make(map[string]string),
		byWallet: make(map[string]string),
	}
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func copyAccount(a *Account) *Account {
	c := *a
	c.RecoveryCodes = append([]string(nil), a.RecoveryCodes...)
	if a.BannedUntil != nil {
		t := *a.BannedUntil
		c.BannedUntil = &t
	}
	if a.LastLogin != nil {
		t := *a.LastLogin
		c.LastLogin = &t
	}
	return &c
}

func (m *MemoryAccountStore) lookup(index map[string]string, key string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := index[foldKey(key)]
	if !ok || key == "" {
		return nil, ErrAccountNotFound
	}
	return copyAccount(m.byID[id]), nil
}

func (m *MemoryAccountStore) GetByID(ctx context.Context, id string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (m *MemoryAccountStore) GetByLogin(ctx context.Context, identifier string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, index := range []map[string]string{m.byName, m.byEmail, m.byWallet} {
		if a, err := m.lookup(index, identifier); err == nil {
			return a, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *MemoryAccountStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.lookup(m.byEmail, email)
}

func (m *MemoryAccountStore) GetByWallet(ctx context.Context, address string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.lookup(m.byWallet, address)
}

func (m *MemoryAccountStore) Create(ctx context.Context, account *Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if account == nil || account.ID == "" {
		return ErrInvalidAccount
	}
	name, email, wallet := foldKey(account.Username), foldKey(account.Email), foldKey(account.WalletAddress)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[account.ID]; ok {
		return ErrAccountExists
	}
	if _, ok := m.byName[name]; ok {
		return ErrAccountExists
	}
	if _, ok := m.byEmail[email]; ok && email != "" {
		return ErrAccountExists
	}
	if _, ok := m.byWallet[wallet]; ok && wallet != "" {
		return ErrAccountExists
	}

	m.byID[account.ID] = copyAccount(account)
	m.byName[name] = account.ID
	if email != "" {
		m.byEmail[email] = account.ID
	}
	if wallet != "" {
		m.byWallet[wallet] = account.ID
	}
	return nil
}

func (m *MemoryAccountStore) update(ctx context.Context, id string, fn func(a *Account)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	fn(a)
	return nil
}

func (m *MemoryAccountStore) UpdatePassword(ctx context.Context, id, hash string) error {
	return m.update(ctx, id, func(a *Account) {
		a.PasswordHash = hash
		a.UpdatedAt = time.Now()
	})
}

func (m *MemoryAccountStore) MarkEmailVerified(ctx context.Context, id string) error {
	return m.update(ctx, id, func(a *Account) {
		a.EmailVerified = true
		a.UpdatedAt = time.Now()
	})
}

func (m *MemoryAccountStore) SetMFA(ctx context.Context, id string, enabled bool, secret string, recoveryCodes []string) error {
	return m.update(ctx, id, func(a *Account) {
		a.MFAEnabled = enabled
		a.MFASecret = secret
		a.RecoveryCodes = append([]string(nil), recoveryCodes...)
		a.UpdatedAt = time.Now()
	})
}

func (m *MemoryAccountStore) ConsumeRecoveryCode(ctx context.Context, id, codeHash string) (bool, error) {
	used := false
	err := m.update(ctx, id, func(a *Account) {
		for i, h := range a.RecoveryCodes {
			if h == codeHash {
				a.RecoveryCodes = append(a.RecoveryCodes[:i:i], a.RecoveryCodes[i+1:]...)
				used = true
				return
			}
		}
	})
	return used, err
}

func (m *MemoryAccountStore) SetRole(ctx context.Context, id, role string) error {
	return m.update(ctx, id, func(a *Account) {
		a.Role = role
		a.UpdatedAt = time.Now()
	})
}

func (m *MemoryAccountStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return m.update(ctx, id, func(a *Account) {
		a.LastLogin = &at
	})
}

// SetBan sets or lifts a ban. A nil until with banned set is permanent.
func (m *MemoryAccountStore) SetBan(ctx context.Context, id string, banned bool, until *time.Time) error {
	return m.update(ctx, id, func(a *Account) {
		a.Banned = banned
		a.BannedUntil = until
	})
}

func (m *MemoryAccountStore) DeleteUnverified(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.byID {
		if a.EmailVerified || password.IsSentinel(a.PasswordHash) || !a.CreatedAt.Before(before) {
			continue
		}
		delete(m.byID, id)
		delete(m.byName, foldKey(a.Username))
		if a.Email != "" {
			delete(m.byEmail, foldKey(a.Email))
		}
		if a.WalletAddress != "" {
			delete(m.byWallet, foldKey(a.WalletAddress))
		}
		n++
	}
	return n, nil
}
