package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the payload of bearer tokens accepted on write endpoints. Tokens are
// issued by the administration portal; this service only verifies them.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}
