package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	svc, err := NewAuthService(privatePEM, publicPEM, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

func TestTokenPairRoundTrip(t *testing.T) {
	svc := newTestAuthService(t)
	pair, err := svc.GenerateTokenPair(42, true)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	access, err := svc.ValidateToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if access.UserID != 42 || access.TokenType != "access" || !access.MustChangePassword {
		t.Fatalf("unexpected access claims %+v", access)
	}

	refresh, err := svc.ValidateToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if refresh.TokenType != "refresh" || refresh.ID == "" {
		t.Fatalf("unexpected refresh claims %+v", refresh)
	}
}

func TestValidateTokenRejectsForeignKey(t *testing.T) {
	issuer := newTestAuthService(t)
	verifier := newTestAuthService(t)
	pair, err := issuer.GenerateTokenPair(1, false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := verifier.ValidateToken(pair.AccessToken); err == nil {
		t.Fatalf("expected signature error")
	}
	if _, err := verifier.ValidateToken(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPasswordHash("s3cret", hash) || CheckPasswordHash("wrong", hash) {
		t.Fatalf("password check mismatch")
	}
	if CheckPasswordHash("s3cret", "") {
		t.Fatalf("empty hash must never match")
	}
}

func TestHashPasswordRejectsOverlong(t *testing.T) {
	// 24 个三字节字符共 72 字节，刚好在上限内。
	if _, err := HashPassword(strings.Repeat("密", 24)); err != nil {
		t.Fatalf("72 bytes should be accepted: %v", err)
	}
	if _, err := HashPassword(strings.Repeat("密", 25)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestTypedValidation(t *testing.T) {
	svc := newTestAuthService(t)
	pair, err := svc.GenerateTokenPair(7, false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := svc.ValidateAccessToken(pair.AccessToken); err != nil {
		t.Fatalf("access token rejected: %v", err)
	}
	if _, err := svc.ValidateRefreshToken(pair.RefreshToken); err != nil {
		t.Fatalf("refresh token rejected: %v", err)
	}
	if _, err := svc.ValidateAccessToken(pair.RefreshToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
	if _, err := svc.ValidateRefreshToken(pair.AccessToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := newTestAuthService(t)
	issued := time.Now().Add(-2 * time.Minute)
	svc.now = func() time.Time { return issued }
	pair, err := svc.GenerateTokenPair(7, false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	svc.now = time.Now
	if _, err := svc.ValidateAccessToken(pair.AccessToken); err == nil {
		t.Fatalf("expected expired access token to be rejected")
	}
	if _, err := svc.ValidateRefreshToken(pair.RefreshToken); err != nil {
		t.Fatalf("refresh token should still be valid: %v", err)
	}
}
