package session

import (
	"log"
	"sync"
)

// Session holds transient unlock state for the running app: which entries
// currently show plaintext per layer, and where their temp decrypted audio
// lives. Pure session state: never persisted, not a security boundary (it
// gates UI affordance, storage safety is the lifecycle hook's job).
// Created at unlock, torn down at lock.
type Session struct {
	mu            sync.Mutex
	baseDecrypted map[string]struct{}
	tagDecrypted  map[string]struct{}
	tempPaths     map[string]string // encrypted file path -> temp decrypted path
	removeFile    func(string) error
}

// New creates an empty session. removeFile is called for each temp
// decrypted file when the session is cleared.
func New(removeFile func(string) error) *Session {
	if removeFile == nil {
		removeFile = func(string) error { return nil }
	}
	return &Session{
		baseDecrypted: make(map[string]struct{}),
		tagDecrypted:  make(map[string]struct{}),
		tempPaths:     make(map[string]string),
		removeFile:    removeFile,
	}
}

// MarkBaseDecrypted records a successful base-layer decrypt
func (s *Session) MarkBaseDecrypted(entryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseDecrypted[entryID] = struct{}{}
}

// MarkTagDecrypted records a successful tag-layer decrypt
func (s *Session) MarkTagDecrypted(entryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tagDecrypted[entryID] = struct{}{}
}

// IsBaseDecrypted reports base-layer unlock membership
func (s *Session) IsBaseDecrypted(entryID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.baseDecrypted[entryID]
	return ok
}

// IsTagDecrypted reports tag-layer unlock membership
func (s *Session) IsTagDecrypted(entryID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tagDecrypted[entryID]
	return ok
}

// ForgetBase drops base-layer membership after re-encryption
func (s *Session) ForgetBase(entryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.baseDecrypted, entryID)
}

// ForgetTag drops tag-layer membership after re-encryption
func (s *Session) ForgetTag(entryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tagDecrypted, entryID)
}

// SetTempPath records a temp decrypted file for an encrypted source path
func (s *Session) SetTempPath(encryptedPath, tempPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempPaths[encryptedPath] = tempPath
}

// TempPath returns the temp decrypted file for an encrypted source path
func (s *Session) TempPath(encryptedPath string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.tempPaths[encryptedPath]
	return p, ok
}

// DropTempPath removes a single side-table mapping and its temp file
func (s *Session) DropTempPath(encryptedPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.tempPaths[encryptedPath]; ok {
		if err := s.removeFile(p); err != nil {
			log.Printf("session: failed to remove temp file %s: %v", p, err)
		}
		delete(s.tempPaths, encryptedPath)
	}
}

// ClearAll atomically forgets all unlock state and deletes every temp
// decrypted file. Called on app-lock and logout. Ciphertext at rest is
// untouched.
func (s *Session) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.tempPaths {
		if err := s.removeFile(p); err != nil {
			log.Printf("session: failed to remove temp file %s: %v", p, err)
		}
	}

	s.baseDecrypted = make(map[string]struct{})
	s.tagDecrypted = make(map[string]struct{})
	s.tempPaths = make(map[string]string)
}
