package auth

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps accounts in process. Every read-modify-write runs under
// one mutex, so lockout counters and refresh collections never race.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	refresh  map[string][]RefreshTokenRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		refresh:  make(map[string][]RefreshTokenRecord),
	}
}

func (s *MemoryStore) CreateAccount(ctx context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.Email == account.Email {
			return Account{}, ErrDuplicateEmail
		}
		if existing.Username == account.Username {
			return Account{}, ErrDuplicateUsername
		}
	}

	s.accounts[account.ID] = account
	return account, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *MemoryStore) GetByIDs(ctx context.Context, ids []string) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Account, 0, len(ids))
	for _, id := range ids {
		if account, ok := s.accounts[id]; ok {
			out = append(out, account)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetByLogin(ctx context.Context, identifier string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.Email == identifier || account.Username == identifier {
			return account, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *MemoryStore) GetByUsername(ctx context.Context, username string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.Username == username {
			return account, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *MemoryStore) GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.PasswordResetHash == "" || account.PasswordResetHash != tokenHash {
			continue
		}
		if account.PasswordResetExpires == nil || !now.Before(*account.PasswordResetExpires) {
			continue
		}
		return account, nil
	}
	return Account{}, ErrAccountNotFound
}

func (s *MemoryStore) EmailExists(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := s.GetByUsername(ctx, username)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) RegisterFailedLogin(ctx context.Context, accountID string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}

	if account.IsLocked(now) {
		until := *account.LockUntil
		return &until, nil
	}

	failed := account.FailedLoginAttempts
	if account.LockUntil != nil {
		failed = 0
		account.LockUntil = nil
	}

	failed++
	var nextLock *time.Time
	if failed >= maxAttempts {
		until := now.UTC().Add(lockDuration)
		nextLock = &until
		account.LockUntil = &until
		failed = 0
	}
	account.FailedLoginAttempts = failed
	account.UpdatedAt = now.UTC()
	s.accounts[accountID] = account

	return nextLock, nil
}

func (s *MemoryStore) ResetFailedLogins(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.FailedLoginAttempts = 0
	account.LockUntil = nil
	s.accounts[accountID] = account
	return nil
}

func (s *MemoryStore) AddRefreshToken(ctx context.Context, accountID string, record RefreshTokenRecord, maxActive int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return ErrAccountNotFound
	}

	records := append(s.refresh[accountID], record)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].IssuedAt.Before(records[j].IssuedAt)
	})
	if maxActive > 0 && len(records) > maxActive {
		records = records[len(records)-maxActive:]
	}
	s.refresh[accountID] = records
	return nil
}

func (s *MemoryStore) HasRefreshToken(ctx context.Context, accountID, tokenHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.refresh[accountID] {
		if record.TokenHash == tokenHash {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) RemoveRefreshToken(ctx context.Context, accountID, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refresh[accountID] = removeRecord(s.refresh[accountID], tokenHash)
	return nil
}

func (s *MemoryStore) ReplaceRefreshToken(ctx context.Context, accountID, oldHash string, record RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.refresh[accountID]
	remaining := removeRecord(records, oldHash)
	if len(remaining) == len(records) {
		return ErrInvalidRefreshToken
	}
	s.refresh[accountID] = append(remaining, record)
	return nil
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, accountID, passwordHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.PasswordHash = passwordHash
	account.PasswordResetHash = ""
	account.PasswordResetExpires = nil
	account.FailedLoginAttempts = 0
	account.LockUntil = nil
	account.UpdatedAt = now.UTC()
	s.accounts[accountID] = account
	delete(s.refresh, accountID)
	return nil
}

func (s *MemoryStore) SetPasswordReset(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.PasswordResetHash = tokenHash
	account.PasswordResetExpires = &expiresAt
	s.accounts[accountID] = account
	return nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, accountID string, update ProfileUpdate, now time.Time) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	if update.Username != nil && *update.Username != account.Username {
		for id, other := range s.accounts {
			if id != accountID && other.Username == *update.Username {
				return Account{}, ErrDuplicateUsername
			}
		}
	}

	applyProfileUpdate(&account, update)
	account.UpdatedAt = now.UTC()
	s.accounts[accountID] = account
	return account, nil
}

func (s *MemoryStore) CleanupExpired(ctx context.Context, now time.Time, batchSize int) (CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result CleanupResult
	for accountID, records := range s.refresh {
		kept := records[:0]
		for _, record := range records {
			if now.Before(record.ExpiresAt) {
				kept = append(kept, record)
				continue
			}
			result.DeletedRefreshTokens++
		}
		s.refresh[accountID] = kept
	}
	for id, account := range s.accounts {
		if account.PasswordResetExpires != nil && !now.Before(*account.PasswordResetExpires) {
			account.PasswordResetHash = ""
			account.PasswordResetExpires = nil
			s.accounts[id] = account
			result.ClearedResetTokens++
		}
	}
	return result, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func removeRecord(records []RefreshTokenRecord, tokenHash string) []RefreshTokenRecord {
	out := make([]RefreshTokenRecord, 0, len(records))
	for _, record := range records {
		if record.TokenHash != tokenHash {
			out = append(out, record)
		}
	}
	return out
}

func applyProfileUpdate(account *Account, update ProfileUpdate) {
	if update.FullName != nil {
		account.FullName = *update.FullName
	}
	if update.Username != nil {
		account.Username = *update.Username
	}
	if update.Bio != nil {
		account.Bio = *update.Bio
	}
	if update.Phone != nil {
		account.Phone = *update.Phone
	}
	if update.Website != nil {
		account.Website = *update.Website
	}
	if update.Location != nil {
		account.Location = *update.Location
	}
	if update.Avatar != nil {
		account.Avatar = *update.Avatar
	}
	if update.IsPrivate != nil {
		account.IsPrivate = *update.IsPrivate
	}
}
