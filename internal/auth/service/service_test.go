package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"zahnflow/backend/internal/security"
	sessiondomain "zahnflow/backend/internal/session/domain"
	userdomain "zahnflow/backend/internal/user/domain"
)

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*userdomain.User
	byEmail map[string]*userdomain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: make(map[string]*userdomain.User), byEmail: make(map[string]*userdomain.User)}
}

func (r *memUserRepo) add(u *userdomain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byEmail[email], nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*sessiondomain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: make(map[string]*sessiondomain.Session)}
}

func (r *memSessionRepo) Insert(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s2 := *s
	r.m[s.ID] = &s2
	return nil
}

func (r *memSessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.m {
		if s.TokenHash == tokenHash {
			delete(r.m, id)
		}
	}
	return nil
}

func (r *memSessionRepo) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.m {
		if s.UserID == userID {
			delete(r.m, id)
		}
	}
	return nil
}

func (r *memSessionRepo) DeleteByID(ctx context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok && s.UserID == userID {
		delete(r.m, id)
		return true, nil
	}
	return false, nil
}

func (r *memSessionRepo) DeleteExpired(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, s := range r.m {
		if s.UserID == userID && s.ExpiresAt.Before(now) {
			delete(r.m, id)
		}
	}
	return nil
}

func (r *memSessionRepo) DeleteOldestByActivity(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *sessiondomain.Session
	for _, s := range r.m {
		if s.UserID != userID {
			continue
		}
		if oldest == nil || s.LastActivity.Before(oldest.LastActivity) {
			oldest = s
		}
	}
	if oldest != nil {
		delete(r.m, oldest.ID)
	}
	return nil
}

func (r *memSessionRepo) CountLive(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	n := 0
	for _, s := range r.m {
		if s.UserID == userID && s.Live(now) {
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, s := range r.m {
		if s.TokenHash == tokenHash && s.Live(now) {
			return s, nil
		}
	}
	return nil, nil
}

func (r *memSessionRepo) TouchActivity(ctx context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.m {
		if s.TokenHash == tokenHash {
			s.LastActivity = time.Now().UTC()
		}
	}
	return nil
}

func (r *memSessionRepo) ListLive(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []*sessiondomain.Session
	for _, s := range r.m {
		if s.UserID == userID && s.Live(now) {
			s2 := *s
			out = append(out, &s2)
		}
	}
	// last_activity DESC, as the Postgres repository orders
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].LastActivity.After(out[i].LastActivity) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

// setActivity pins a session's last-activity timestamp so eviction order is deterministic.
func (r *memSessionRepo) setActivity(tokenHash string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.m {
		if s.TokenHash == tokenHash {
			s.LastActivity = at
		}
	}
}

func (r *memSessionRepo) liveSessions(userID string) []*sessiondomain.Session {
	out, _ := r.ListLive(context.Background(), userID)
	return out
}

const (
	testEmail    = "zahnarzt@zahnflow.de"
	testPassword = "ZahnFlow2024!"
	testUserID   = "u-1"
)

func newTestService(t *testing.T) (*Service, *memUserRepo, *memSessionRepo) {
	t.Helper()
	userRepo := newMemUserRepo()
	sessionRepo := newMemSessionRepo()
	hasher := security.NewHasher(4)
	hash, err := hasher.Hash([]byte(testPassword))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	now := time.Now().UTC()
	userRepo.add(&userdomain.User{
		ID:           testUserID,
		Email:        testEmail,
		PasswordHash: hash,
		Name:         "Dr. Max Mustermann",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	tokens, err := security.NewTokenProvider("test-secret", 24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	return New(userRepo, sessionRepo, hasher, tokens, 3), userRepo, sessionRepo
}

func TestLogin_TokenRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	u, token, err := svc.Login(ctx, testEmail, testPassword, SessionInfo{DeviceInfo: "Firefox", IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.Email != testEmail || u.ID != testUserID {
		t.Errorf("user = %q %q, want %q %q", u.ID, u.Email, testUserID, testEmail)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	payload, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if payload == nil {
		t.Fatal("expected valid payload right after login")
	}
	if payload.UserID != testUserID || payload.Email != testEmail {
		t.Errorf("payload = %q %q, want %q %q", payload.UserID, payload.Email, testUserID, testEmail)
	}
}

func TestLogin_NormalizesEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.Login(context.Background(), "  ZAHNARZT@ZahnFlow.DE ", testPassword, SessionInfo{})
	if err != nil {
		t.Fatalf("Login with mixed-case email: %v", err)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, unknownErr := svc.Login(ctx, "x@y.com", "whatever", SessionInfo{})
	if unknownErr != ErrInvalidCredentials {
		t.Errorf("unknown email: want ErrInvalidCredentials, got %v", unknownErr)
	}
	_, _, wrongErr := svc.Login(ctx, testEmail, "wrong-password", SessionInfo{})
	if wrongErr != ErrInvalidCredentials {
		t.Errorf("wrong password: want ErrInvalidCredentials, got %v", wrongErr)
	}
	// Both failure modes must be indistinguishable to the caller.
	if unknownErr != wrongErr {
		t.Error("unknown email and wrong password should yield the identical error")
	}
}

func TestLogin_CapInvariant(t *testing.T) {
	svc, _, sessionRepo := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, token, err := svc.Login(ctx, testEmail, testPassword, SessionInfo{})
		if err != nil {
			t.Fatalf("Login %d: %v", i, err)
		}
		// Distinct timestamps so the eviction target is well defined.
		sessionRepo.setActivity(security.HashToken(token), time.Now().UTC().Add(time.Duration(i)*time.Minute))

		if n, _ := sessionRepo.CountLive(ctx, testUserID); n > 3 {
			t.Fatalf("after login %d: %d live sessions, cap is 3", i, n)
		}
	}
}

func TestLogin_EvictsLeastRecentlyActive(t *testing.T) {
	svc, _, sessionRepo := newTestService(t)
	ctx := context.Background()
	base := time.Now().UTC()

	devices := []string{"d1", "d2", "d3", "d4"}
	for i, d := range devices {
		_, token, err := svc.Login(ctx, testEmail, testPassword, SessionInfo{DeviceInfo: d})
		if err != nil {
			t.Fatalf("Login %s: %v", d, err)
		}
		sessionRepo.setActivity(security.HashToken(token), base.Add(time.Duration(i)*time.Minute))
	}

	live := sessionRepo.liveSessions(testUserID)
	if len(live) != 3 {
		t.Fatalf("live sessions = %d, want 3", len(live))
	}
	remaining := map[string]bool{}
	for _, s := range live {
		remaining[s.DeviceInfo] = true
	}
	if remaining["d1"] {
		t.Error("d1 should have been evicted as least recently active")
	}
	for _, d := range []string{"d2", "d3", "d4"} {
		if !remaining[d] {
			t.Errorf("session for %s should have survived", d)
		}
	}
}

func TestLogin_PurgesExpiredSessions(t *testing.T) {
	svc, _, sessionRepo := newTestService(t)
	ctx := context.Background()

	// A stale session must not count against the cap.
	stale := &sessiondomain.Session{
		ID:           "stale-1",
		UserID:       testUserID,
		TokenHash:    "stale-hash",
		CreatedAt:    time.Now().Add(-48 * time.Hour),
		ExpiresAt:    time.Now().Add(-24 * time.Hour),
		LastActivity: time.Now().Add(-24 * time.Hour),
	}
	if err := sessionRepo.Insert(ctx, stale); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, _, err := svc.Login(ctx, testEmail, testPassword, SessionInfo{}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	sessionRepo.mu.Lock()
	_, staleExists := sessionRepo.m["stale-1"]
	sessionRepo.mu.Unlock()
	if staleExists {
		t.Error("expired session should have been purged during login")
	}
}

func TestValidateToken_AfterLogout(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, token, err := svc.Login(ctx, testEmail, testPassword, SessionInfo{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	// The token's signature and expiry claim are still valid; only the
	// missing session record must reject it.
	payload, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if payload != nil {
		t.Error("token should not validate after logout")
	}
}

func TestLogout_Idempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, token, err := svc.Login(ctx, testEmail, testPassword, SessionInfo{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("first Logout: %v", err)
	}
	if err := svc.Logout(ctx, token); err != nil {
		t.Errorf("second Logout should be a no-op, got %v", err)
	}
}

func TestLogoutAll(t *testing.T) {
	svc, _, sessionRepo := newTestService(t)
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		_, token, err := svc.Login(ctx, testEmail, testPassword, SessionInfo{})
		if err != nil {
			t.Fatalf("Login %d: %v", i, err)
		}
		tokens = append(tokens, token)
	}
	if err := svc.LogoutAll(ctx, testUserID); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	if n, _ := sessionRepo.CountLive(ctx, testUserID); n != 0 {
		t.Errorf("live sessions after LogoutAll = %d, want 0", n)
	}
	for i, token := range tokens {
		if payload, _ := svc.ValidateToken(ctx, token); payload != nil {
			t.Errorf("token %d should not validate after LogoutAll", i)
		}
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, tok := range []string{"", "not-a-jwt", "aaa.bbb.ccc"} {
		payload, err := svc.ValidateToken(ctx, tok)
		if err != nil {
			t.Errorf("ValidateToken(%q) returned error %v, want nil", tok, err)
		}
		if payload != nil {
			t.Errorf("ValidateToken(%q) = %+v, want nil", tok, payload)
		}
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	other, err := security.NewTokenProvider("other-secret", 24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	forged, _, err := other.Issue(testUserID, testEmail)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	payload, err := svc.ValidateToken(ctx, forged)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if payload != nil {
		t.Error("token signed with a different secret should not validate")
	}
}

func TestRevokeSession_CrossUserIsolation(t *testing.T) {
	svc, userRepo, sessionRepo := newTestService(t)
	ctx := context.Background()

	hasher := security.NewHasher(4)
	otherHash, _ := hasher.Hash([]byte("anderes-passwort"))
	userRepo.add(&userdomain.User{
		ID:           "u-2",
		Email:        "kollege@zahnflow.de",
		PasswordHash: otherHash,
		Name:         "Dr. Erika Beispiel",
	})

	_, token, err := svc.Login(ctx, "kollege@zahnflow.de", "anderes-passwort", SessionInfo{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	otherSessions := sessionRepo.liveSessions("u-2")
	if len(otherSessions) != 1 {
		t.Fatalf("live sessions for u-2 = %d, want 1", len(otherSessions))
	}

	// u-1 attempts to revoke u-2's session.
	deleted, err := svc.RevokeSession(ctx, testUserID, otherSessions[0].ID)
	if err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if deleted {
		t.Error("revoking another user's session should report not found")
	}
	if payload, _ := svc.ValidateToken(ctx, token); payload == nil {
		t.Error("u-2's session should survive a foreign revocation attempt")
	}

	// The owner can revoke it.
	deleted, err = svc.RevokeSession(ctx, "u-2", otherSessions[0].ID)
	if err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if !deleted {
		t.Error("owner revocation should delete the session")
	}
}

func TestActiveSessions_OrderAndDefaults(t *testing.T) {
	svc, _, sessionRepo := newTestService(t)
	ctx := context.Background()
	base := time.Now().UTC()

	_, t1, err := svc.Login(ctx, testEmail, testPassword, SessionInfo{DeviceInfo: "Chrome on Windows", IPAddress: "192.168.1.2"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	_, t2, err := svc.Login(ctx, testEmail, testPassword, SessionInfo{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	sessionRepo.setActivity(security.HashToken(t1), base.Add(time.Minute))
	sessionRepo.setActivity(security.HashToken(t2), base)

	sessions, err := svc.ActiveSessions(ctx, testUserID)
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[0].DeviceInfo != "Chrome on Windows" {
		t.Errorf("sessions[0].DeviceInfo = %q, want the most recently active first", sessions[0].DeviceInfo)
	}
	if sessions[1].DeviceInfo != "Unbekanntes Gerät" {
		t.Errorf("missing device info should default, got %q", sessions[1].DeviceInfo)
	}
	if sessions[1].IPAddress != "Unbekannt" {
		t.Errorf("missing IP should default, got %q", sessions[1].IPAddress)
	}
}

func TestUserByID(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.UserByID(ctx, testUserID)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if u == nil || u.Email != testEmail {
		t.Fatalf("UserByID = %+v, want user %q", u, testEmail)
	}

	missing, err := svc.UserByID(ctx, "no-such-user")
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if missing != nil {
		t.Errorf("UserByID for unknown id = %+v, want nil", missing)
	}
}
