// Package memory is an in-process implementation of every store capability.
// It backs tests and single-process development servers.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SametHaymana/merco-api/session"
	"github.com/SametHaymana/merco-api/storage"
)

// Store holds all entities behind one RWMutex.
type Store struct {
	mu sync.RWMutex

	users       map[string]*storage.User // id -> user
	tokens      map[string]*storage.VerificationToken
	keys        map[string]*storage.APIKey // id -> key
	roles       map[string]*storage.Role   // id -> role
	assignments map[string]map[string]struct{}
	sessions    map[string]*session.Session
}

var (
	_ storage.Storage = (*Store)(nil)
	_ session.Store   = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]*storage.User),
		tokens:      make(map[string]*storage.VerificationToken),
		keys:        make(map[string]*storage.APIKey),
		roles:       make(map[string]*storage.Role),
		assignments: make(map[string]map[string]struct{}),
		sessions:    make(map[string]*session.Session),
	}
}

/* ==== USERS ==== */

func (s *Store) CreateUser(_ context.Context, u *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return storage.ErrConflict
	}
	for _, existing := range s.users {
		if existing.TenantID != u.TenantID {
			continue
		}
		if u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return storage.ErrConflict
		}
		if u.Phone != "" && existing.Phone == u.Phone {
			return storage.ErrConflict
		}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *Store) UserByID(_ context.Context, tenantID, userID string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok || u.TenantID != tenantID {
		return nil, storage.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) UserByEmail(_ context.Context, tenantID, email string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.TenantID == tenantID && u.Email != "" && strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) UserByPhone(_ context.Context, tenantID, phone string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.TenantID == tenantID && u.Phone != "" && u.Phone == phone {
			return cloneUser(u), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) UpdateUser(_ context.Context, u *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[u.ID]
	if !ok || cur.TenantID != u.TenantID {
		return storage.ErrNotFound
	}
	for id, other := range s.users {
		if id == u.ID || other.TenantID != u.TenantID {
			continue
		}
		if u.Email != "" && strings.EqualFold(other.Email, u.Email) {
			return storage.ErrConflict
		}
		if u.Phone != "" && other.Phone == u.Phone {
			return storage.ErrConflict
		}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *Store) ConsumeBackupCode(_ context.Context, tenantID, userID, hash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok || u.TenantID != tenantID {
		return storage.ErrNotFound
	}
	for i, h := range u.BackupCodes {
		if h == hash {
			u.BackupCodes = append(u.BackupCodes[:i:i], u.BackupCodes[i+1:]...)
			u.UpdatedAt = now
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) RecordSignIn(_ context.Context, tenantID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok || u.TenantID != tenantID {
		return storage.ErrNotFound
	}
	u.LastSignInAt = &at
	u.UpdatedAt = at
	return nil
}

/* ==== VERIFICATION TOKENS ==== */

func (s *Store) PutToken(_ context.Context, t *storage.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[t.ID]; ok {
		return storage.ErrConflict
	}
	cp := *t
	s.tokens[t.ID] = &cp
	return nil
}

func (s *Store) ConsumeToken(_ context.Context, l storage.TokenLookup, now time.Time) (*storage.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.TenantID != l.TenantID || t.Kind != l.Kind || t.SecretHash != l.SecretHash {
			continue
		}
		if l.Identifier != "" && t.Identifier != l.Identifier {
			continue
		}
		if !t.Consumable(now) {
			continue
		}
		used := now
		t.UsedAt = &used
		cp := *t
		return &cp, nil
	}
	return nil, storage.ErrNotFound
}

func (s *Store) DeleteExpiredTokens(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, t := range s.tokens {
		if !now.Before(t.ExpiresAt) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

/* ==== API KEYS ==== */

func (s *Store) CreateAPIKey(_ context.Context, k *storage.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.keys {
		if existing.ID == k.ID || existing.Hash == k.Hash {
			return storage.ErrConflict
		}
	}
	cp := *k
	s.keys[k.ID] = &cp
	return nil
}

func (s *Store) APIKeyByHash(_ context.Context, hash string) (*storage.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range s.keys {
		if k.Hash == hash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListAPIKeys(_ context.Context, tenantID string) ([]storage.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.APIKey, 0)
	for _, k := range s.keys {
		if k.TenantID == tenantID {
			out = append(out, *k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeactivateAPIKey(_ context.Context, tenantID, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[keyID]
	if !ok || k.TenantID != tenantID {
		return storage.ErrNotFound
	}
	k.Active = false
	return nil
}

/* ==== ROLES ==== */

func (s *Store) CreateRole(_ context.Context, r *storage.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.roles {
		if existing.ID == r.ID || (existing.TenantID == r.TenantID && existing.Name == r.Name) {
			return storage.ErrConflict
		}
	}
	s.roles[r.ID] = cloneRole(r)
	return nil
}

func (s *Store) Role(_ context.Context, tenantID, roleID string) (*storage.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[roleID]
	if !ok || r.TenantID != tenantID {
		return nil, storage.ErrNotFound
	}
	return cloneRole(r), nil
}

func (s *Store) Roles(_ context.Context, tenantID string) ([]storage.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.Role, 0)
	for _, r := range s.roles {
		if r.TenantID == tenantID {
			out = append(out, *cloneRole(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateRole(_ context.Context, r *storage.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.roles[r.ID]
	if !ok || cur.TenantID != r.TenantID {
		return storage.ErrNotFound
	}
	for id, other := range s.roles {
		if id != r.ID && other.TenantID == r.TenantID && other.Name == r.Name {
			return storage.ErrConflict
		}
	}
	s.roles[r.ID] = cloneRole(r)
	return nil
}

func (s *Store) DeleteRole(_ context.Context, tenantID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[roleID]
	if !ok || r.TenantID != tenantID {
		return storage.ErrNotFound
	}
	delete(s.roles, roleID)
	for _, set := range s.assignments {
		delete(set, roleID)
	}
	return nil
}

func (s *Store) AssignRole(_ context.Context, tenantID, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[roleID]
	if !ok || r.TenantID != tenantID {
		return storage.ErrNotFound
	}
	u, ok := s.users[userID]
	if !ok || u.TenantID != tenantID {
		return storage.ErrNotFound
	}
	set, ok := s.assignments[userID]
	if !ok {
		set = make(map[string]struct{})
		s.assignments[userID] = set
	}
	set[roleID] = struct{}{}
	return nil
}

func (s *Store) UnassignRole(_ context.Context, tenantID, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[roleID]
	if !ok || r.TenantID != tenantID {
		return storage.ErrNotFound
	}
	set := s.assignments[userID]
	if _, ok := set[roleID]; !ok {
		return storage.ErrNotFound
	}
	delete(set, roleID)
	return nil
}

func (s *Store) UserRoles(_ context.Context, tenantID, userID string) ([]storage.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.Role, 0)
	for roleID := range s.assignments[userID] {
		r, ok := s.roles[roleID]
		if ok && r.TenantID == tenantID {
			out = append(out, *cloneRole(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

/* ==== SESSIONS ==== */

func (s *Store) CreateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; ok {
		return storage.ErrConflict
	}
	for _, existing := range s.sessions {
		if existing.RefreshHash == sess.RefreshHash {
			return storage.ErrConflict
		}
	}
	s.sessions[sess.ID] = storedSession(sess)
	return nil
}

func (s *Store) Session(_ context.Context, sessionID string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) SessionByRefreshHash(_ context.Context, refreshHash string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.RefreshHash == refreshHash {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, session.ErrNotFound
}

func (s *Store) RotateRefresh(_ context.Context, sessionID, currentHash string, next session.Rotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}
	if sess.Revoked || sess.RefreshHash != currentHash {
		return session.ErrRefreshMismatch
	}
	sess.RefreshHash = next.RefreshHash
	sess.ExpiresAt = next.ExpiresAt
	sess.LastActiveAt = next.LastActiveAt
	return nil
}

func (s *Store) RevokeSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}
	sess.Revoked = true
	return nil
}

func (s *Store) RevokeUserSessions(_ context.Context, tenantID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sess := range s.sessions {
		if sess.TenantID == tenantID && sess.UserID == userID && !sess.Revoked {
			sess.Revoked = true
			n++
		}
	}
	return n, nil
}

func (s *Store) RevokeExpiredSessions(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sess := range s.sessions {
		if !sess.Revoked && !now.Before(sess.ExpiresAt) {
			sess.Revoked = true
			n++
		}
	}
	return n, nil
}

func storedSession(sess *session.Session) *session.Session {
	cp := *sess
	cp.AccessToken = ""
	cp.RefreshToken = ""
	cp.AccessExpiresAt = time.Time{}
	return &cp
}

func cloneUser(u *storage.User) *storage.User {
	cp := *u
	if u.Metadata != nil {
		cp.Metadata = append(json.RawMessage(nil), u.Metadata...)
	}
	if u.BackupCodes != nil {
		cp.BackupCodes = append([]string(nil), u.BackupCodes...)
	}
	if u.LastSignInAt != nil {
		t := *u.LastSignInAt
		cp.LastSignInAt = &t
	}
	return &cp
}

func cloneRole(r *storage.Role) *storage.Role {
	cp := *r
	cp.Permissions = append([]string(nil), r.Permissions...)
	return &cp
}
