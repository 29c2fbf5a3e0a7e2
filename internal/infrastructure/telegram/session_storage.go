package telegram

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gotd/td/session"
)

// CredentialWriter persists an account's session blob
type CredentialWriter interface {
	UpdateCredential(ctx context.Context, id int64, credential []byte) error
}

// CredentialStorage implements session.Storage on top of the account's
// credential column. Telethon string sessions are converted to the gotd
// format on first load.
type CredentialStorage struct {
	accountID int64
	writer    CredentialWriter

	mu   sync.Mutex
	data []byte
}

// NewCredentialStorage creates a storage seeded with the stored credential
func NewCredentialStorage(accountID int64, credential []byte, writer CredentialWriter) *CredentialStorage {
	return &CredentialStorage{
		accountID: accountID,
		writer:    writer,
		data:      bytes.TrimSpace(credential),
	}
}

// LoadSession returns the gotd session bytes
func (s *CredentialStorage) LoadSession(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	if s.data[0] == '{' {
		return append([]byte(nil), s.data...), nil
	}

	converted, err := convertTelethon(ctx, string(s.data))
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", s.accountID, err)
	}
	s.data = converted

	return append([]byte(nil), converted...), nil
}

// StoreSession writes the session back to the account record
func (s *CredentialStorage) StoreSession(ctx context.Context, data []byte) error {
	if err := s.writer.UpdateCredential(ctx, s.accountID, data); err != nil {
		return fmt.Errorf("failed to store session for account %d: %w", s.accountID, err)
	}

	s.mu.Lock()
	s.data = append([]byte(nil), data...)
	s.mu.Unlock()

	return nil
}

// convertTelethon decodes a Telethon string session and re-encodes it in the
// gotd storage format
func convertTelethon(ctx context.Context, raw string) ([]byte, error) {
	data, err := session.TelethonSession(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode telethon session: %w", err)
	}

	mem := &session.StorageMemory{}
	loader := session.Loader{Storage: mem}
	if err := loader.Save(ctx, data); err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	return mem.LoadSession(ctx)
}

var _ session.Storage = (*CredentialStorage)(nil)
