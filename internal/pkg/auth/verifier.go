// Package auth 解析请求中的身份凭证，身份本身由外部身份服务提供
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	jwtpkg "github.com/qs3c/exam_prep_server/internal/pkg/jwt"
)

const defaultLeeway = 30 * time.Second

var ErrInvalidToken = errors.New("invalid token")

// Identity 已认证用户
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Verifier 校验 token 并返回用户身份
type Verifier interface {
	Verify(token string) (*Identity, error)
}

// HS256Verifier 使用共享密钥校验
type HS256Verifier struct {
	secret string
}

func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: secret}
}

func (v *HS256Verifier) Verify(token string) (*Identity, error) {
	claims, err := jwtpkg.ParseToken(token, v.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// JWKSVerifier 通过托管身份服务的 JWKS 校验 RS256 token
type JWKSVerifier struct {
	keyfunc keyfunc.Keyfunc
	parser  *jwt.Parser
}

// NewJWKSVerifierFromURL 从 JWKS 地址加载公钥，后台自动刷新
func NewJWKSVerifierFromURL(jwksURL, issuer, audience string) (*JWKSVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url must be set")
	}
	kf, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}
	return NewJWKSVerifier(kf, issuer, audience), nil
}

func NewJWKSVerifier(kf keyfunc.Keyfunc, issuer, audience string) *JWKSVerifier {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &JWKSVerifier{
		keyfunc: kf,
		parser:  jwt.NewParser(opts...),
	}
}

func (v *JWKSVerifier) Verify(token string) (*Identity, error) {
	parsed, err := v.parser.Parse(token, v.keyfunc.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	identity := &Identity{
		UserID: readString(claims, "sub"),
		Email:  readString(claims, "email"),
		Name:   readString(claims, "name"),
	}
	if identity.UserID == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return identity, nil
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// StaticVerifier 本地开发关闭认证时使用，所有请求视为同一用户
type StaticVerifier struct {
	identity Identity
}

func NewStaticVerifier(userID, email string) *StaticVerifier {
	return &StaticVerifier{identity: Identity{UserID: userID, Email: email, Name: "Local Developer"}}
}

func (v *StaticVerifier) Verify(string) (*Identity, error) {
	id := v.identity
	return &id, nil
}
