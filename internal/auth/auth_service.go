package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"texResume/internal/config"
)

// 令牌类型，写入 token_type 声明。
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	tokenIssuer = "texresume"
)

// ErrWrongTokenType 表示令牌签名有效但类型与调用方期望的不一致。
var ErrWrongTokenType = errors.New("wrong token type")

// AuthService 签发与校验 RS256 令牌。
type AuthService struct {
	privateKey      *rsa.PrivateKey
	publicKey       *rsa.PublicKey
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	now             func() time.Time
}

// TokenPair 封装访问令牌与刷新令牌。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenClaims 是令牌中的业务声明。refresh 令牌带 jti，用于登出后吊销。
type TokenClaims struct {
	UserID             uint   `json:"user_id"`
	TokenType          string `json:"token_type"`
	MustChangePassword bool   `json:"must_change_password,omitempty"`
	jwt.RegisteredClaims
}

// NewAuthService 解析 PEM 密钥并构造服务实例。
func NewAuthService(privateKeyPEM, publicKeyPEM []byte, accessTTL, refreshTTL time.Duration) (*AuthService, error) {
	if len(privateKeyPEM) == 0 || len(publicKeyPEM) == 0 {
		return nil, errors.New("both private and public key pem are required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}

	return &AuthService{
		privateKey:      privateKey,
		publicKey:       publicKey,
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
		now:             time.Now,
	}, nil
}

// LoadAuthService 从配置中的 PEM 文件路径加载密钥。
func LoadAuthService(cfg config.AuthConfig) (*AuthService, error) {
	privateKeyPEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	publicKeyPEM, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return NewAuthService(privateKeyPEM, publicKeyPEM, cfg.AccessTTL, cfg.RefreshTTL)
}

// GenerateTokenPair 创建访问令牌与刷新令牌。
// mustChangePassword 只写入访问令牌，刷新时由调用方根据数据库重新给出。
func (s *AuthService) GenerateTokenPair(userID uint, mustChangePassword bool) (TokenPair, error) {
	now := s.now()

	access, err := s.sign(TokenClaims{
		UserID:             userID,
		TokenType:          TokenTypeAccess,
		MustChangePassword: mustChangePassword,
		RegisteredClaims:   s.registered(userID, now, s.accessTokenTTL, ""),
	})
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(TokenClaims{
		UserID:           userID,
		TokenType:        TokenTypeRefresh,
		RegisteredClaims: s.registered(userID, now, s.refreshTokenTTL, uuid.NewString()),
	})
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) registered(userID uint, now time.Time, ttl time.Duration, jti string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   strconv.FormatUint(uint64(userID), 10),
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s *AuthService) sign(claims TokenClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

// ValidateToken 校验签名、签发方与有效期，不检查令牌类型。
func (s *AuthService) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, errors.New("token string is empty")
	}

	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.publicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.UserID == 0 {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}

// ValidateAccessToken 校验令牌并要求其为访问令牌。
func (s *AuthService) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	return s.validateTyped(tokenString, TokenTypeAccess)
}

// ValidateRefreshToken 校验令牌并要求其为带 jti 的刷新令牌。
func (s *AuthService) ValidateRefreshToken(tokenString string) (*TokenClaims, error) {
	claims, err := s.validateTyped(tokenString, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, errors.New("refresh token has no jti")
	}
	return claims, nil
}

func (s *AuthService) validateTyped(tokenString, want string) (*TokenClaims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != want {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongTokenType, claims.TokenType, want)
	}
	return claims, nil
}

// AccessTokenTTL 返回访问令牌有效期。
func (s *AuthService) AccessTokenTTL() time.Duration {
	return s.accessTokenTTL
}

// RefreshTokenTTL 返回刷新令牌有效期。
func (s *AuthService) RefreshTokenTTL() time.Duration {
	return s.refreshTokenTTL
}
