// Package identity computes the stable profile id that scopes every
// document path.
package identity

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// FallbackProfileID is used when no other identity source is available.
const FallbackProfileID = "guest"

// localIDFile is the file name under the state dir holding the locally
// generated profile id.
const localIDFile = "profile_id"

// Resolver computes the profile id with a fixed precedence:
//
//  1. a host-injected cross-device id
//  2. the authenticated identity's uid
//  3. a locally generated id persisted under the state dir
//  4. FallbackProfileID
//
// The result is deterministic within a session; it only changes when the
// auth uid changes.
type Resolver struct {
	injected string
	stateDir string

	mu      sync.Mutex
	authUID string
	localID string
}

// NewResolver builds a Resolver. injected may be empty; stateDir is where
// the local id is persisted when it has to be generated.
func NewResolver(injected, stateDir string) *Resolver {
	return &Resolver{injected: injected, stateDir: stateDir}
}

// SetAuthUser records the authenticated identity's uid. An empty uid
// clears it (sign-out).
func (r *Resolver) SetAuthUser(uid string) {
	r.mu.Lock()
	r.authUID = uid
	r.mu.Unlock()
}

// ProfileID returns the active profile id. On first use without a persisted
// local id it generates one and writes it to the state dir; persistence
// failures are logged and the in-memory id is kept for the session.
func (r *Resolver) ProfileID() string {
	if r.injected != "" {
		return r.injected
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.authUID != "" {
		return r.authUID
	}
	if r.localID == "" {
		r.localID = r.loadOrCreateLocalID()
	}
	if r.localID == "" {
		return FallbackProfileID
	}
	return r.localID
}

func (r *Resolver) loadOrCreateLocalID() string {
	path := filepath.Join(r.stateDir, localIDFile)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	id := "local_" + uuid.NewString()
	if err := os.MkdirAll(r.stateDir, 0o700); err != nil {
		log.Warn("Failed to create state dir; local profile id will not survive restart", "dir", r.stateDir, "err", err)
		return id
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		log.Warn("Failed to persist local profile id", "path", path, "err", err)
	}
	return id
}
