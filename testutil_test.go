package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"kovoy/models"
	"kovoy/pkg/hashutil"
	"kovoy/pkg/jwtauth"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// captureSender records outbound mail so tests can pull codes and link
// tokens out of message bodies.
type captureSender struct {
	mu       sync.Mutex
	messages []capturedMail
}

type capturedMail struct {
	To      string
	Subject string
	Body    string
}

func (s *captureSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, capturedMail{To: to, Subject: subject, Body: body})
	return nil
}

// waitFor blocks until at least count messages have been delivered and
// returns the count-th one. Delivery is fire-and-forget, so tests must poll.
func (s *captureSender) waitFor(t *testing.T, count int) capturedMail {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.messages) >= count {
			m := s.messages[count-1]
			s.mu.Unlock()
			return m
		}
		s.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for mail #%d", count)
	return capturedMail{}
}

func testConfig() Config {
	return Config{
		HTTPAddr:                 ":0",
		AppBaseURL:               "http://localhost:8081",
		JWTSecret:                []byte("test-secret"),
		BcryptCost:               bcrypt.MinCost,
		AccessTokenTTL:           30 * time.Minute,
		RefreshTTLRemember:       30 * 24 * time.Hour,
		RefreshTTLSession:        24 * time.Hour,
		TwoFactorTTL:             10 * time.Minute,
		TwoFactorMaxAttempts:     5,
		EmailVerificationTTL:     time.Hour,
		ResetTTL:                 30 * time.Minute,
		RequireEmailVerification: true,
		GoogleClientID:           "test-client-id",
	}
}

func newTestApp(t *testing.T) (*app, *captureSender) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps every session on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	migrateDB(db, zap.NewNop())

	cfg := testConfig()
	mail := &captureSender{}
	return &app{
		cfg:  cfg,
		db:   db,
		log:  zap.NewNop(),
		jwt:  jwtauth.New(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.TwoFactorTTL),
		mail: mail,
	}, mail
}

// testClient drives the router like a browser: it carries cookies between
// requests and echoes the CSRF cookie into the header on mutating calls.
type testClient struct {
	t       *testing.T
	r       http.Handler
	cookies map[string]string
}

func newTestClient(t *testing.T, a *app) *testClient {
	t.Helper()
	r := gin.New()
	a.setupRoutes(r)
	tc := &testClient{t: t, r: r, cookies: map[string]string{}}
	// prime the CSRF cookie the way a page load would
	tc.get("/healthz")
	return tc
}

func (tc *testClient) do(method, path string, body any) *httptest.ResponseRecorder {
	tc.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(tc.t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range tc.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if method != http.MethodGet {
		req.Header.Set(csrfHeaderName, tc.cookies[csrfCookieName])
	}
	rec := httptest.NewRecorder()
	tc.r.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 || ck.Value == "" {
			delete(tc.cookies, ck.Name)
			continue
		}
		tc.cookies[ck.Name] = ck.Value
	}
	return rec
}

func (tc *testClient) get(path string) *httptest.ResponseRecorder {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *testClient) post(path string, body any) *httptest.ResponseRecorder {
	return tc.do(http.MethodPost, path, body)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func createTestUser(t *testing.T, a *app, email, password string, verified bool) *models.User {
	t.Helper()
	hashed, err := hashutil.Password(password, a.cfg.BcryptCost)
	require.NoError(t, err)
	user := &models.User{Email: email, HashedPassword: hashed}
	if verified {
		now := time.Now()
		user.EmailVerifiedAt = &now
	}
	require.NoError(t, a.db.Create(user).Error)
	return user
}
