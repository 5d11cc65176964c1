package authhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"kpihub/internal/domain/auth"
)

const testSecret = "handler-test-secret"

type fakeSession struct {
	userID  string
	expires time.Time
	revoked bool
}

type fakeAuthStore struct {
	mu        sync.Mutex
	users     map[string]auth.AuthUser // keyed by email
	employees map[string]string        // userID -> employeeID
	sessions  map[string]fakeSession   // keyed by token hash
	resets    map[string]string        // token hash -> userID
	lastLogin map[string]bool
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		users:     map[string]auth.AuthUser{},
		employees: map[string]string{},
		sessions:  map[string]fakeSession{},
		resets:    map[string]string{},
		lastLogin: map[string]bool{},
	}
}

func (f *fakeAuthStore) FindActiveUserByEmail(_ context.Context, email, _ string) (auth.AuthUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[email]
	if !ok {
		return auth.AuthUser{}, errors.New("no rows")
	}
	return user, nil
}

func (f *fakeAuthStore) EmployeeIDForUser(_ context.Context, _, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.employees[userID]
	if !ok {
		return "", errors.New("no rows")
	}
	return id, nil
}

func (f *fakeAuthStore) UpdateLastLogin(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLogin[userID] = true
	return nil
}

func (f *fakeAuthStore) CreateSession(_ context.Context, userID, hash string, expires time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[hash] = fakeSession{userID: userID, expires: expires}
	return nil
}

func (f *fakeAuthStore) RevokeSession(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[hash]; ok && s.userID == userID {
		s.revoked = true
		f.sessions[hash] = s
	}
	return nil
}

func (f *fakeAuthStore) SessionValid(_ context.Context, userID, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[hash]
	return ok && s.userID == userID && !s.revoked && s.expires.After(time.Now()), nil
}

func (f *fakeAuthStore) RotateSession(_ context.Context, userID, oldHash, newHash string, expires time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[oldHash]; ok && s.userID == userID {
		delete(f.sessions, oldHash)
		f.sessions[newHash] = fakeSession{userID: userID, expires: expires}
	}
	return nil
}

func (f *fakeAuthStore) UpdateMFASecret(context.Context, string, []byte) error { return nil }

func (f *fakeAuthStore) GetMFASecret(context.Context, string) ([]byte, error) { return nil, nil }

func (f *fakeAuthStore) SetMFAEnabled(context.Context, string, bool) error { return nil }

func (f *fakeAuthStore) UserIDByEmail(_ context.Context, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[email]
	if !ok {
		return "", errors.New("no rows")
	}
	return user.ID, nil
}

func (f *fakeAuthStore) CreatePasswordReset(_ context.Context, userID, tokenHash string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[tokenHash] = userID
	return nil
}

func (f *fakeAuthStore) PasswordResetUserID(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.resets[tokenHash]
	if !ok {
		return "", errors.New("no rows")
	}
	return userID, nil
}

func (f *fakeAuthStore) UpdateUserPassword(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, user := range f.users {
		if user.ID == userID {
			user.PasswordHash = hash
			f.users[email] = user
		}
	}
	return nil
}

func (f *fakeAuthStore) MarkPasswordResetUsed(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resets, tokenHash)
	return nil
}

func seedUser(t *testing.T, store *fakeAuthStore, email, password string) auth.AuthUser {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := auth.AuthUser{
		ID:           "user-1",
		TenantID:     "tenant-1",
		RoleID:       "role-employee",
		RoleName:     auth.RoleEmployee,
		PasswordHash: hash,
	}
	store.users[email] = user
	store.employees[user.ID] = "emp-1"
	return user
}

func postJSON(t *testing.T, handlerFunc http.HandlerFunc, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	rec := httptest.NewRecorder()
	handlerFunc(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope
}

func TestLoginIssuesTokenAndSession(t *testing.T) {
	store := newFakeAuthStore()
	seedUser(t, store, "pat@example.com", "s3cret-pw")
	handler := NewHandler(auth.NewService(store), testSecret, nil)

	rec := postJSON(t, handler.HandleLogin, loginRequest{Email: "pat@example.com", Password: "s3cret-pw"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatal("expected a token in the response")
	}

	claims, err := auth.ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.UserID != "user-1" || claims.EmployeeID != "emp-1" || claims.RoleName != auth.RoleEmployee {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.SessionID == "" {
		t.Fatal("expected a session id in the claims")
	}
	if _, ok := store.sessions[auth.HashToken(claims.SessionID)]; !ok {
		t.Fatal("expected a stored session for the issued token")
	}
	if !store.lastLogin["user-1"] {
		t.Fatal("expected last login to be recorded")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	store := newFakeAuthStore()
	seedUser(t, store, "pat@example.com", "s3cret-pw")
	handler := NewHandler(auth.NewService(store), testSecret, nil)

	rec := postJSON(t, handler.HandleLogin, loginRequest{Email: "pat@example.com", Password: "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	envelope := decodeEnvelope(t, rec)
	errObj := envelope["error"].(map[string]any)
	if errObj["code"] != "invalid_credentials" {
		t.Fatalf("error code = %v, want invalid_credentials", errObj["code"])
	}
	if len(store.sessions) != 0 {
		t.Fatal("no session should be created for a failed login")
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	store := newFakeAuthStore()
	user := seedUser(t, store, "pat@example.com", "s3cret-pw")
	handler := NewHandler(auth.NewService(store), testSecret, nil)

	sessionID, sessionHash, err := auth.NewOpaqueToken()
	if err != nil {
		t.Fatalf("new opaque token: %v", err)
	}
	store.sessions[sessionHash] = fakeSession{userID: user.ID, expires: time.Now().Add(time.Hour)}

	token, err := auth.GenerateToken(testSecret, auth.Claims{
		UserID:    user.ID,
		TenantID:  user.TenantID,
		RoleID:    user.RoleID,
		RoleName:  user.RoleName,
		SessionID: sessionID,
	}, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	rec := postJSON(t, handler.HandleRefresh, map[string]any{}, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	newToken, _ := data["token"].(string)
	claims, err := auth.ParseToken(testSecret, newToken)
	if err != nil {
		t.Fatalf("parse rotated token: %v", err)
	}
	if claims.SessionID == sessionID {
		t.Fatal("refresh must rotate the session id")
	}
	if _, ok := store.sessions[sessionHash]; ok {
		t.Fatal("old session hash should be gone after rotation")
	}
	if _, ok := store.sessions[auth.HashToken(claims.SessionID)]; !ok {
		t.Fatal("rotated session hash should be stored")
	}

	// A second refresh on the stale token must be rejected.
	rec = postJSON(t, handler.HandleRefresh, map[string]any{}, header)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale refresh status = %d, want 401", rec.Code)
	}
}

func TestRequestResetDoesNotRevealAccounts(t *testing.T) {
	store := newFakeAuthStore()
	seedUser(t, store, "pat@example.com", "s3cret-pw")
	handler := NewHandler(auth.NewService(store), testSecret, nil)

	known := postJSON(t, handler.HandleRequestReset, resetRequest{Email: "pat@example.com"}, nil)
	unknown := postJSON(t, handler.HandleRequestReset, resetRequest{Email: "nobody@example.com"}, nil)

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("statuses = %d/%d, want 200/200", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		// Bodies differ only by requestId, which is empty outside the middleware.
		t.Fatalf("responses must not distinguish known from unknown emails:\n%s\n%s", known.Body.String(), unknown.Body.String())
	}
	if len(store.resets) != 1 {
		t.Fatalf("resets stored = %d, want 1 (known email only)", len(store.resets))
	}
}
