package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/database"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	tokens, err := NewTokenManager("test-secret", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}
	logger, _ := test.NewNullLogger()
	return NewManager(NewUserStore(database.OpenTest(t)), tokens, logger)
}

func newRouter(m *Manager) *gin.Engine {
	r := gin.New()
	r.POST("/api/auth/register", m.Register)
	r.POST("/api/auth/login", m.Login)
	r.GET("/api/auth/me", m.RequireAuth(), m.Me)
	return r
}

func doJSON(r http.Handler, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.1:1234"
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterLoginMe(t *testing.T) {
	m := newTestManager(t)
	r := newRouter(m)

	w := doJSON(r, http.MethodPost, "/api/auth/register", gin.H{
		"username": "alice", "email": "alice@example.com", "password": "correct horse",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d body=%s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("password hash leaked: %s", w.Body.String())
	}

	w = doJSON(r, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "correct horse"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", w.Code, w.Body.String())
	}
	var login struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.TokenType != "bearer" || login.ExpiresIn != 1800 || login.AccessToken == "" {
		t.Fatalf("unexpected login response: %+v", login)
	}

	w = doJSON(r, http.MethodGet, "/api/auth/me", nil, http.Header{"Authorization": {"Bearer " + login.AccessToken}})
	if w.Code != http.StatusOK {
		t.Fatalf("me status = %d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"username":"alice"`) {
		t.Fatalf("me body = %s", w.Body.String())
	}
}

func TestMeRequiresToken(t *testing.T) {
	r := newRouter(newTestManager(t))

	w := doJSON(r, http.MethodGet, "/api/auth/me", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	w = doJSON(r, http.MethodGet, "/api/auth/me", nil, http.Header{"Authorization": {"Bearer not-a-jwt"}})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.RegisterUser(ctx, RegisterInput{Username: "alice", Email: "a@example.com", Password: "pw"}); err != nil {
		t.Fatalf("RegisterUser returned error: %v", err)
	}
	_, err := m.RegisterUser(ctx, RegisterInput{Username: "bob", Email: "a@example.com", Password: "pw"})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterPasswordRules(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.RegisterUser(ctx, RegisterInput{Username: "alice", Email: "a@example.com", Password: ""})
	if apperr.KindOf(err) != apperr.KindValidation || apperr.Message(err) != "empty password" {
		t.Fatalf("empty password: %v", err)
	}
	_, err = m.RegisterUser(ctx, RegisterInput{Username: "alice", Email: "a@example.com", Password: strings.Repeat("x", 101)})
	if apperr.KindOf(err) != apperr.KindValidation || apperr.Message(err) != "oversized password" {
		t.Fatalf("oversized password: %v", err)
	}
}

func TestTruncatePasswordKeepsRuneBoundary(t *testing.T) {
	// 3バイト文字を25個並べると75バイトになり、72バイト目は文字の途中ではなく境界になる
	pw := strings.Repeat("あ", 25)
	if got := truncatePassword(pw); len(got) != 72 {
		t.Fatalf("len = %d", len(got))
	}
	// 先頭1バイトずらすと境界が71バイト目になる
	pw = "a" + strings.Repeat("あ", 25)
	got := truncatePassword(pw)
	if len(got) != 70 {
		t.Fatalf("len = %d", len(got))
	}

	hash, err := HashPassword(pw)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !VerifyPassword(pw, hash) {
		t.Fatal("VerifyPassword failed for the original password")
	}
	if !VerifyPassword(pw+"zzz", hash) {
		t.Fatal("bytes after the 72-byte limit should be ignored")
	}
}

func TestLoginLockout(t *testing.T) {
	m := newTestManager(t)
	r := newRouter(m)
	if _, err := m.RegisterUser(context.Background(), RegisterInput{Username: "alice", Email: "a@example.com", Password: "pw"}); err != nil {
		t.Fatalf("RegisterUser returned error: %v", err)
	}

	for i := 0; i < maxLoginAttempts; i++ {
		w := doJSON(r, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "wrong"}, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d", i, w.Code)
		}
	}
	w := doJSON(r, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "pw"}, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
}

func TestLoginInactiveUser(t *testing.T) {
	m := newTestManager(t)
	r := newRouter(m)
	user, err := m.RegisterUser(context.Background(), RegisterInput{Username: "alice", Email: "a@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("RegisterUser returned error: %v", err)
	}
	if err := m.users.SetActive(context.Background(), user.ID, false); err != nil {
		t.Fatalf("SetActive returned error: %v", err)
	}

	w := doJSON(r, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "pw"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
}

func TestTokenExpiry(t *testing.T) {
	tokens, _ := NewTokenManager("s", time.Minute)
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }
	tok, err := tokens.Issue(&User{ID: "u1", Username: "alice"})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	claims, err := tokens.Parse(tok)
	if err != nil || claims.UserID != "u1" || claims.Subject != "alice" {
		t.Fatalf("Parse returned %+v, %v", claims, err)
	}

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := tokens.Parse(tok); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}
