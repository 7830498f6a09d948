package controller

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TokenPrefix starts every plain API token.
const TokenPrefix = "lq_"

// APIToken represents an access key for the HTTP API. Only the bcrypt hash
// of the secret is kept.
type APIToken struct {
	ID        string `json:"id"`   // UUID
	Name      string `json:"name"` // e.g. "grafana"
	Hash      string `json:"hash"` // bcrypt hashed secret
	CreatedAt int64  `json:"created_at"`
}

// MetaData is the persisted container for tokens.
type MetaData struct {
	Tokens []APIToken `json:"tokens"`
}

// Store handles the persistence and in-memory management of API tokens.
type Store struct {
	filePath string
	cost     int
	mu       sync.RWMutex
	data     *MetaData
}

// NewStore creates a new token store backed by filePath.
func NewStore(filePath string) *Store {
	return &Store{
		filePath: filePath,
		cost:     bcrypt.DefaultCost,
		data:     &MetaData{Tokens: make([]APIToken, 0)},
	}
}

// Load reads tokens from disk. A missing file leaves the store empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	data := &MetaData{}
	if err := json.Unmarshal(raw, data); err != nil {
		return err
	}
	if data.Tokens == nil {
		data.Tokens = make([]APIToken, 0)
	}
	s.data = data
	return nil
}

// saveLocked writes tokens to disk.
func (s *Store) saveLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(s.filePath, raw, 0600)
}

// Create issues a new token. The plain secret is returned once and never stored.
func (s *Store) Create(name string) (string, APIToken, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", APIToken{}, err
	}
	plain := TokenPrefix + hex.EncodeToString(secret)

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), s.cost)
	if err != nil {
		return "", APIToken{}, err
	}

	t := APIToken{
		ID:        uuid.NewString(),
		Name:      name,
		Hash:      string(hash),
		CreatedAt: time.Now().Unix(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Tokens = append(s.data.Tokens, t)
	if err := s.saveLocked(); err != nil {
		s.data.Tokens = s.data.Tokens[:len(s.data.Tokens)-1]
		return "", APIToken{}, err
	}
	return plain, t, nil
}

// Verify finds the token matching a plain secret.
func (s *Store) Verify(plain string) (APIToken, bool) {
	if !strings.HasPrefix(plain, TokenPrefix) {
		return APIToken{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.data.Tokens {
		if bcrypt.CompareHashAndPassword([]byte(t.Hash), []byte(plain)) == nil {
			return t, true
		}
	}
	return APIToken{}, false
}

// Delete removes a token by ID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.data.Tokens {
		if t.ID == id {
			s.data.Tokens = append(s.data.Tokens[:i], s.data.Tokens[i+1:]...)
			return s.saveLocked()
		}
	}
	return os.ErrNotExist
}

// List returns a copy of all tokens.
func (s *Store) List() []APIToken {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]APIToken, len(s.data.Tokens))
	copy(out, s.data.Tokens)
	return out
}
