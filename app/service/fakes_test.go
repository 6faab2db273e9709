package service_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-hr-auth/app/entity"
	"github.com/vibast-solutions/ms-go-hr-auth/app/mail"
	"github.com/vibast-solutions/ms-go-hr-auth/app/repository"
	"github.com/vibast-solutions/ms-go-hr-auth/app/service"
	"github.com/vibast-solutions/ms-go-hr-auth/app/token"
	"github.com/vibast-solutions/ms-go-hr-auth/app/verification"
	"github.com/vibast-solutions/ms-go-hr-auth/config"
)

// memoryStore mirrors the users table including its unique indexes on
// canonical_email and verification_code.
type memoryStore struct {
	mu     sync.Mutex
	nextID uint64
	users  map[uint64]*entity.User

	failNextCreate error
	findErr        error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: map[uint64]*entity.User{}}
}

func (s *memoryStore) Create(_ context.Context, user *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNextCreate != nil {
		err := s.failNextCreate
		s.failNextCreate = nil
		return err
	}
	for _, existing := range s.users {
		if existing.CanonicalEmail == user.CanonicalEmail {
			return repository.ErrDuplicateEmail
		}
		if user.VerificationCode.Valid && existing.VerificationCode.Valid &&
			existing.VerificationCode.String == user.VerificationCode.String {
			return repository.ErrDuplicateVerificationCode
		}
	}

	s.nextID++
	user.ID = s.nextID
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *memoryStore) FindByCanonicalEmail(_ context.Context, canonicalEmail string) (*entity.User, error) {
	return s.findOne(func(u *entity.User) bool { return u.CanonicalEmail == canonicalEmail })
}

func (s *memoryStore) FindByID(_ context.Context, id uint64) (*entity.User, error) {
	return s.findOne(func(u *entity.User) bool { return u.ID == id })
}

func (s *memoryStore) FindByVerificationCode(_ context.Context, code string) (*entity.User, error) {
	return s.findOne(func(u *entity.User) bool {
		return u.VerificationCode.Valid && u.VerificationCode.String == code
	})
}

func (s *memoryStore) ReplaceVerificationCode(_ context.Context, user *entity.User, previousSentAt sql.NullTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[user.ID]
	if !ok || stored.IsVerified || !sameNullTime(stored.LastVerificationSentAt, previousSentAt) {
		return repository.ErrStaleWrite
	}
	for id, other := range s.users {
		if id != user.ID && other.VerificationCode.Valid && user.VerificationCode.Valid &&
			other.VerificationCode.String == user.VerificationCode.String {
			return repository.ErrDuplicateVerificationCode
		}
	}

	stored.VerificationCode = user.VerificationCode
	stored.VerificationExpiresAt = user.VerificationExpiresAt
	stored.LastVerificationSentAt = user.LastVerificationSentAt
	stored.UpdatedAt = user.UpdatedAt
	return nil
}

func (s *memoryStore) ActivateByVerificationCode(_ context.Context, id uint64, code string, now time.Time) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[id]
	if !ok || stored.IsVerified || !stored.VerificationCode.Valid || stored.VerificationCode.String != code {
		return nil, repository.ErrStaleWrite
	}

	stored.IsActive = true
	stored.IsVerified = true
	stored.VerificationCode = sql.NullString{}
	stored.VerificationExpiresAt = sql.NullTime{}
	stored.EmailVerifiedAt = sql.NullTime{Time: now, Valid: true}
	stored.UpdatedAt = now

	out := *stored
	return &out, nil
}

func (s *memoryStore) SetActive(_ context.Context, id uint64, active bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.users[id]; ok {
		stored.IsActive = active
		stored.UpdatedAt = now
	}
	return nil
}

func (s *memoryStore) SetRole(_ context.Context, id uint64, role string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.users[id]; ok {
		stored.Role = role
		stored.UpdatedAt = now
	}
	return nil
}

func (s *memoryStore) findOne(match func(*entity.User) bool) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.users {
		if match(u) {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) get(t *testing.T, email string) *entity.User {
	t.Helper()

	user, _ := s.FindByCanonicalEmail(context.Background(), service.CanonicalizeEmail(email))
	if user == nil {
		t.Fatalf("no stored user for %s", email)
	}
	return user
}

func sameNullTime(a, b sql.NullTime) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Time.Equal(b.Time)
}

// plainHasher keeps service tests fast; argon2 is covered in app/password.
type plainHasher struct{}

func (plainHasher) Hash(plaintext string) (string, error) { return "plain$" + plaintext, nil }

func (plainHasher) Verify(plaintext, encoded string) bool {
	return encoded == "plain$"+plaintext
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Name() string { return "recording" }

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) lastCode(t *testing.T) string {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	text := m.sent[len(m.sent)-1].Text
	idx := strings.Index(text, "code is: ")
	if idx < 0 || len(text) < idx+len("code is: ")+verification.CodeLength {
		t.Fatalf("no code in mail body: %q", text)
	}
	start := idx + len("code is: ")
	return text[start : start+verification.CodeLength]
}

// scriptedCodes replays a fixed sequence of codes, repeating the last one.
type scriptedCodes struct {
	mu    sync.Mutex
	codes []string
	calls int
	ttl   time.Duration
}

func (g *scriptedCodes) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.codes) == 0 {
		return "", errors.New("no codes scripted")
	}
	idx := g.calls
	if idx >= len(g.codes) {
		idx = len(g.codes) - 1
	}
	g.calls++
	return g.codes[idx], nil
}

func (g *scriptedCodes) ExpiresAt(now time.Time) time.Time {
	return now.Add(g.ttl)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeOnboarding struct {
	exists bool
	err    error
}

func (f fakeOnboarding) ExistsForUser(context.Context, uint64) (bool, error) {
	return f.exists, f.err
}

type fakeLimiter struct {
	err   error
	calls []string
}

func (l *fakeLimiter) Allow(_ context.Context, client string) error {
	l.calls = append(l.calls, client)
	return l.err
}

func testConfig(requireConfirmation bool) *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:          "test-secret",
			Issuer:          "hr-auth",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Auth: config.AuthConfig{
			RequireEmailConfirmation: requireConfirmation,
			VerificationCodeTTL:      24 * time.Hour,
			ResendCooldown:           60 * time.Second,
		},
		Password: config.PasswordConfig{
			Policy: config.PasswordPolicy{MinLength: 8},
		},
		Mail: config.MailConfig{AppName: "HR Records"},
	}
}

type harness struct {
	svc    service.UserAuthService
	store  *memoryStore
	mailer *recordingMailer
	clock  *fakeClock
	codec  *token.Codec
	cfg    *config.Config
}

type harnessOption func(*harnessSettings)

type harnessSettings struct {
	codes interface {
		Generate() (string, error)
		ExpiresAt(time.Time) time.Time
	}
	opts []service.UserAuthServiceOption
}

func withCodes(codes *scriptedCodes) harnessOption {
	return func(s *harnessSettings) { s.codes = codes }
}

func withServiceOptions(opts ...service.UserAuthServiceOption) harnessOption {
	return func(s *harnessSettings) { s.opts = append(s.opts, opts...) }
}

func newHarness(t *testing.T, requireConfirmation bool, opts ...harnessOption) *harness {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	codec, err := token.NewCodec("test-secret", "hr-auth", token.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}

	settings := &harnessSettings{codes: verification.NewGenerator(24 * time.Hour)}
	for _, opt := range opts {
		opt(settings)
	}

	h := &harness{
		store:  newMemoryStore(),
		mailer: &recordingMailer{},
		clock:  clock,
		codec:  codec,
		cfg:    testConfig(requireConfirmation),
	}
	svcOpts := append([]service.UserAuthServiceOption{service.WithClock(clock.Now)}, settings.opts...)
	h.svc = service.NewUserAuthService(h.store, plainHasher{}, codec, settings.codes, h.mailer, h.cfg, svcOpts...)
	return h
}
