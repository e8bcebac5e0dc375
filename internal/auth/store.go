package auth

import (
	"bufio"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// saltBytes is the number of random bytes salted into each password hash.
const saltBytes = 16

// credential is one stored username entry: a random salt and the
// SHA-256 digest of salt||password.
type credential struct {
	salt []byte
	hash []byte
}

// Store is a file-backed credential store. The file holds one
// "username:salthex:hashhex" line per user and is written with 0600
// permissions. Store implements Gate.
type Store struct {
	mu    sync.RWMutex
	path  string
	creds map[string]credential
}

// Open loads the credential store at path.
// A missing file yields an empty store; Save will create it.
func Open(path string) (*Store, error) {
	s := &Store{
		path:  path,
		creds: make(map[string]credential),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("credential store %s:%d: malformed entry", path, lineno)
		}
		salt, err := hex.DecodeString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("credential store %s:%d: bad salt: %w", path, lineno, err)
		}
		hash, err := hex.DecodeString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("credential store %s:%d: bad hash: %w", path, lineno, err)
		}
		s.creds[parts[0]] = credential{salt: salt, hash: hash}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read credential store: %w", err)
	}

	return s, nil
}

// Authenticate checks a username/password pair against the store.
// An empty or unknown username fails; comparison is constant-time.
// A missing password is treated as the empty string by callers.
func (s *Store) Authenticate(username, password string) bool {
	if username == "" {
		return false
	}

	s.mu.RLock()
	cred, ok := s.creds[username]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	digest := hashPassword(cred.salt, password)
	return subtle.ConstantTimeCompare(digest, cred.hash) == 1
}

// Set adds or replaces the credential for username.
// The store file is rewritten immediately.
func (s *Store) Set(username, password string) error {
	if username == "" {
		return fmt.Errorf("username must not be empty")
	}
	if strings.ContainsAny(username, ": \t\n") {
		return fmt.Errorf("username %q contains invalid characters", username)
	}

	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[username] = credential{salt: salt, hash: hashPassword(salt, password)}
	return s.save()
}

// Remove deletes the credential for username.
// Returns false if the username was not present.
func (s *Store) Remove(username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.creds[username]; !ok {
		return false, nil
	}
	delete(s.creds, username)
	return true, s.save()
}

// Users returns the stored usernames, sorted.
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// save writes the store file. Caller holds s.mu.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	var b strings.Builder
	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cred := s.creds[name]
		fmt.Fprintf(&b, "%s:%s:%s\n", name, hex.EncodeToString(cred.salt), hex.EncodeToString(cred.hash))
	}

	if err := os.WriteFile(s.path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write credential store: %w", err)
	}
	return nil
}

// hashPassword returns the SHA-256 digest of salt||password.
func hashPassword(salt []byte, password string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))
	return h.Sum(nil)
}
