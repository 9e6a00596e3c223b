package main

import (
	"fmt"
	"time"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"

	"github.com/golang-jwt/jwt/v4"
)

// AccessTokenCreator mints the access token handed out after a successful
// MFA challenge.
type AccessTokenCreator interface {
	CreateAccessToken(user models.UserProfile) (token string, err error)
}

const DefaultAccessTokenTTL = time.Hour

type accessTokenClaims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

func NewJwtAccessTokenCreator(secret, issuer string, ttl time.Duration) (*JwtAccessTokenCreator, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	return &JwtAccessTokenCreator{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}, nil
}

type JwtAccessTokenCreator struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func (jc *JwtAccessTokenCreator) CreateAccessToken(user models.UserProfile) (string, error) {
	now := time.Now()
	claims := accessTokenClaims{
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    jc.issuer,
			Subject:   user.Id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(jc.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jc.secret)
}

// StaticTokenCreator hands out a fixed token. Used when no jwt secret is
// configured, matching the disconnected mock mode of the rest of the stack.
type StaticTokenCreator struct {
	Token string
}

func (sc StaticTokenCreator) CreateAccessToken(_ models.UserProfile) (string, error) {
	return sc.Token, nil
}
