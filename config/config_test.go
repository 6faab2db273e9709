package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPasswordPolicyValidate(t *testing.T) {
	policy := PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
		RequireSpecial:   true,
	}

	if err := policy.Validate("short"); err == nil {
		t.Fatalf("expected error for short password")
	}
	if err := policy.Validate("lowercase1!"); err == nil {
		t.Fatalf("expected error for missing uppercase")
	}
	if err := policy.Validate("UPPERCASE1!"); err == nil {
		t.Fatalf("expected error for missing lowercase")
	}
	if err := policy.Validate("NoNumber!"); err == nil {
		t.Fatalf("expected error for missing number")
	}
	if err := policy.Validate("NoSpecial1"); err == nil {
		t.Fatalf("expected error for missing special")
	}
	if err := policy.Validate("GoodPass1!"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
}

func TestDefaultPasswordPolicyAcceptsPlainPasswords(t *testing.T) {
	if err := loadPasswordPolicy().Validate("pw123456"); err != nil {
		t.Fatalf("expected default policy to accept pw123456, got %v", err)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "value")
	if got := getEnv("TEST_STRING", "default"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
	if got := getEnv("MISSING_STRING", "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}

	t.Setenv("TEST_DURATION", "30")
	if got := getDurationEnv("TEST_DURATION", time.Minute, 5*time.Minute); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %v", got)
	}
	if got := getDurationEnv("TEST_DURATION", time.Second, 5*time.Second); got != 30*time.Second {
		t.Fatalf("expected 30s, got %v", got)
	}
	t.Setenv("TEST_DURATION", "invalid")
	if got := getDurationEnv("TEST_DURATION", time.Minute, 5*time.Minute); got != 5*time.Minute {
		t.Fatalf("expected default duration, got %v", got)
	}
	t.Setenv("TEST_DURATION", "-4")
	if got := getDurationEnv("TEST_DURATION", time.Minute, 5*time.Minute); got != 5*time.Minute {
		t.Fatalf("expected default duration for negative value, got %v", got)
	}

	t.Setenv("TEST_BOOL", "true")
	if got := getBoolEnv("TEST_BOOL", false); got != true {
		t.Fatalf("expected true, got %v", got)
	}
	t.Setenv("TEST_BOOL", "invalid")
	if got := getBoolEnv("TEST_BOOL", true); got != true {
		t.Fatalf("expected default bool, got %v", got)
	}

	t.Setenv("TEST_INT", "42")
	if got := getIntEnv("TEST_INT", 5); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("TEST_INT", "invalid")
	if got := getIntEnv("TEST_INT", 5); got != 5 {
		t.Fatalf("expected default int, got %d", got)
	}
}

func chdirTemp(t *testing.T) string {
	t.Helper()

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd failed: %v", err)
	}
	tmp := t.TempDir()
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origDir)
	})
	return tmp
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "")
	t.Setenv("MYSQL_DSN", "")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error when JWT_SECRET is missing")
	}
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MYSQL_DSN", "")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error when MYSQL_DSN is missing")
	}
}

func TestLoadSuccess(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(db:3306)/hrdb?parseTime=true")
	t.Setenv("HTTP_PORT", "8081")
	t.Setenv("GRPC_PORT", "9091")
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "20")
	t.Setenv("JWT_REFRESH_TOKEN_TTL_DAYS", "30")
	t.Setenv("REQUIRE_EMAIL_CONFIRMATION", "false")
	t.Setenv("VERIFICATION_CODE_TTL_HOURS", "48")
	t.Setenv("RESEND_COOLDOWN_SECONDS", "90")
	t.Setenv("PASSWORD_MIN_LENGTH", "10")
	t.Setenv("PASSWORD_REQUIRE_LOWERCASE", "true")
	t.Setenv("ARGON2_MEMORY_KB", "32768")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTP.Port != "8081" || cfg.GRPC.Port != "9091" {
		t.Fatalf("unexpected ports: %s %s", cfg.HTTP.Port, cfg.GRPC.Port)
	}
	if cfg.DSN() != "user:pass@tcp(db:3306)/hrdb?parseTime=true" {
		t.Fatalf("unexpected mysql dsn: %s", cfg.DSN())
	}
	if cfg.JWT.AccessTokenTTL != 20*time.Minute || cfg.JWT.RefreshTokenTTL != 30*24*time.Hour {
		t.Fatalf("unexpected jwt ttl: %v %v", cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	}
	if cfg.Auth.RequireEmailConfirmation {
		t.Fatalf("expected confirmation to be disabled")
	}
	if cfg.Auth.VerificationCodeTTL != 48*time.Hour || cfg.Auth.ResendCooldown != 90*time.Second {
		t.Fatalf("unexpected auth timings: %+v", cfg.Auth)
	}
	if cfg.Password.Policy.MinLength != 10 || !cfg.Password.Policy.RequireLowercase || cfg.Password.Policy.RequireUppercase {
		t.Fatalf("unexpected password policy: %+v", cfg.Password.Policy)
	}
	if cfg.Password.Argon2.MemoryKB != 32768 {
		t.Fatalf("unexpected argon2 memory: %d", cfg.Password.Argon2.MemoryKB)
	}
	if !cfg.Mail.Enabled() || !cfg.Redis.Enabled() {
		t.Fatalf("expected mail and redis to be enabled")
	}
}

func TestLoadUsesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/hr?parseTime=true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTP.Port != "8080" || cfg.GRPC.Port != "9090" {
		t.Fatalf("expected default ports, got %s %s", cfg.HTTP.Port, cfg.GRPC.Port)
	}
	if !cfg.Auth.RequireEmailConfirmation {
		t.Fatalf("expected confirmation to be required by default")
	}
	if cfg.JWT.AccessTokenTTL != time.Hour || cfg.JWT.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("unexpected default jwt ttl: %v %v", cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	}
	if cfg.Auth.VerificationCodeTTL != 24*time.Hour || cfg.Auth.ResendCooldown != time.Minute {
		t.Fatalf("unexpected default auth timings: %+v", cfg.Auth)
	}
	if cfg.Mail.Enabled() || cfg.Redis.Enabled() {
		t.Fatalf("expected mail and redis to be disabled by default")
	}
}

func TestLoadRespectsEnvFileLocation(t *testing.T) {
	tmp := chdirTemp(t)

	envPath := filepath.Join(tmp, ".env")
	if err := os.WriteFile(envPath, []byte("JWT_SECRET=envfile-secret\nMYSQL_DSN=user:pass@tcp(localhost:3306)/hr?parseTime=true\nHTTP_PORT=9099\n"), 0600); err != nil {
		t.Fatalf("write .env failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.JWT.Secret != "envfile-secret" || cfg.HTTP.Port != "9099" {
		t.Fatalf("expected env file values, got %s %s", cfg.JWT.Secret, cfg.HTTP.Port)
	}
}
