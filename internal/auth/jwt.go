package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleWidget is the only role issued to browsers
const RoleWidget = "widget"

// WidgetTokenTTL is how long a widget token stays valid
const WidgetTokenTTL = 24 * time.Hour

var ErrInvalidClaims = errors.New("token is missing widget claims")

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	WidgetID string `json:"widget_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and validates widget tokens with a shared HS256 secret
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates a token issuer
func NewIssuer(secret string) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &Issuer{secret: []byte(secret), ttl: WidgetTokenTTL, now: time.Now}, nil
}

// GenerateWidgetToken generates a JWT token for a widget socket
func (i *Issuer) GenerateWidgetToken(widgetID string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := &JWTClaims{
		WidgetID: widgetID,
		Role:     RoleWidget,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrInvalidKey
	}
	if claims.Role != RoleWidget || claims.WidgetID == "" {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}
