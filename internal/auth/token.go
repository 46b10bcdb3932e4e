package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("access token expired or invalid")

// Claims is the access token payload. CompanyID/StoreID/Role/Permissions
// are present only on contextual tokens. The token is a capability
// snapshot, not re-derived from the DB on every call.
type Claims struct {
	UserID      uuid.UUID
	CompanyID   *uuid.UUID
	StoreID     *uuid.UUID
	Role        string
	Permissions []string
	ExpiresAt   time.Time
}

// Contextual reports whether the token carries an active company scope.
func (c Claims) Contextual() bool { return c.CompanyID != nil }

// NewAccessToken signs an HS256 JWT for the given claims.
func NewAccessToken(secret []byte, ttl time.Duration, c Claims) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)

	claims := jwt.MapClaims{
		"sub": c.UserID.String(),
		"exp": exp.Unix(),
		"iat": now.Unix(),
	}
	if c.CompanyID != nil {
		claims["companyId"] = c.CompanyID.String()
	}
	if c.StoreID != nil {
		claims["storeId"] = c.StoreID.String()
	}
	if c.Role != "" {
		claims["role"] = c.Role
	}
	if len(c.Permissions) > 0 {
		claims["permissions"] = c.Permissions
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccessToken verifies the signature and expiry and returns the
// decoded claims. Any failure maps to ErrInvalidToken.
func ParseAccessToken(secret []byte, tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	sub, _ := mc["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{UserID: userID}
	if s, ok := mc["companyId"].(string); ok {
		if id, err := uuid.Parse(s); err == nil {
			out.CompanyID = &id
		}
	}
	if s, ok := mc["storeId"].(string); ok {
		if id, err := uuid.Parse(s); err == nil {
			out.StoreID = &id
		}
	}
	if s, ok := mc["role"].(string); ok {
		out.Role = s
	}
	if raw, ok := mc["permissions"].([]interface{}); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out.Permissions = append(out.Permissions, s)
			}
		}
	}
	if exp, ok := mc["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return out, nil
}

// RefreshToken is a long-lived opaque token. Raw is returned to the client
// once; only the SHA-256 hash is ever persisted.
type RefreshToken struct {
	Raw       string
	ExpiresAt time.Time
}

// NewRefreshToken returns 512 bits of secure randomness, hex encoded.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw:       hex.EncodeToString(buf),
		ExpiresAt: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
	}, nil
}

// HashToken returns the hex SHA-256 of a raw token. Used for refresh
// tokens, OTP codes and invitation tokens alike.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
