package breakglass

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/chaingate/internal/model"
)

// validID matches alphanumeric, dash characters only (ks-<hex>).
var validID = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// validateID rejects IDs that could cause path traversal.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("id must not be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("id must not contain '..'")
	}
	if !validID.MatchString(id) {
		return fmt.Errorf("id contains invalid characters")
	}
	return nil
}

// MaxDuration is the longest a kill-switch override may be issued for.
// A zero duration means the override stands until revoked.
const MaxDuration = 1 * time.Hour

// Token is a kill-switch override: while active, denials of Mechanism
// are recorded as bypasses and the operation proceeds.
type Token struct {
	ID        string          `json:"id"`
	Mechanism model.Mechanism `json:"mechanism"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at,omitempty"`
	RevokedAt *time.Time      `json:"revoked_at,omitempty"`
}

// IsActive returns true if the token is neither revoked nor expired.
func (t *Token) IsActive() bool {
	return t.ActiveAt(time.Now())
}

// ActiveAt reports whether the token is in force at now.
func (t *Token) ActiveAt(now time.Time) bool {
	if t == nil || t.RevokedAt != nil {
		return false
	}
	return t.ExpiresAt.IsZero() || now.Before(t.ExpiresAt)
}

// Issue validates the request and returns a new token without
// persisting it.
func Issue(mech model.Mechanism, reason string, duration time.Duration) (*Token, error) {
	if _, ok := model.ParseMechanism(string(mech)); !ok {
		return nil, fmt.Errorf("unknown mechanism %q", mech)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("kill-switch reason is required")
	}
	if duration < 0 {
		return nil, fmt.Errorf("kill-switch duration must not be negative")
	}
	if duration > MaxDuration {
		return nil, fmt.Errorf("kill-switch duration %s exceeds maximum %s", duration, MaxDuration)
	}

	id, err := generateID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	token := &Token{
		ID:        id,
		Mechanism: mech,
		Reason:    strings.TrimSpace(reason),
		CreatedAt: now,
	}
	if duration > 0 {
		token.ExpiresAt = now.Add(duration)
	}
	return token, nil
}

// Store manages kill-switch token files on disk so that an operator
// command can reach a running server through its reload watcher.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a Store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("cannot create kill-switch directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the default kill-switch token directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "chaingate-killswitch")
	}
	return filepath.Join(home, ".chaingate", "killswitch")
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Create issues a token and writes it to disk.
func (s *Store) Create(mech model.Mechanism, reason string, duration time.Duration) (*Token, error) {
	token, err := Issue(mech, reason, duration)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeAtomic(s.path(token.ID), token); err != nil {
		return nil, fmt.Errorf("failed to write token: %w", err)
	}
	return token, nil
}

// Active returns the newest active token per mechanism.
func (s *Store) Active() map[model.Mechanism]*Token {
	tokens, err := s.List()
	if err != nil {
		return nil
	}
	active := make(map[model.Mechanism]*Token)
	for i := range tokens {
		t := &tokens[i]
		if !t.IsActive() {
			continue
		}
		if cur, ok := active[t.Mechanism]; !ok || t.CreatedAt.After(cur.CreatedAt) {
			active[t.Mechanism] = t
		}
	}
	return active
}

// Revoke marks a token as revoked.
func (s *Store) Revoke(id string) error {
	if err := validateID(id); err != nil {
		return fmt.Errorf("invalid token id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.read(id)
	if err != nil {
		return fmt.Errorf("token %q not found: %w", id, err)
	}

	now := time.Now().UTC()
	token.RevokedAt = &now
	return s.writeAtomic(s.path(id), token)
}

// RevokeMechanism revokes every active token for mech and returns how
// many were revoked.
func (s *Store) RevokeMechanism(mech model.Mechanism) (int, error) {
	tokens, err := s.List()
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, t := range tokens {
		if t.Mechanism != mech || !t.IsActive() {
			continue
		}
		if err := s.Revoke(t.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// List returns all tokens in the store, oldest first.
func (s *Store) List() ([]Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tokens []Token
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		token, err := s.read(id)
		if err != nil {
			continue
		}
		tokens = append(tokens, *token)
	}

	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})
	return tokens, nil
}

// Cleanup removes expired and revoked token files.
func (s *Store) Cleanup() error {
	tokens, err := s.List()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, t := range tokens {
		if !t.IsActive() {
			if err := os.Remove(s.path(t.ID)); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) read(id string) (*Token, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}
	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *Store) writeAtomic(path string, token *Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func generateID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return "ks-" + hex.EncodeToString(b), nil
}
