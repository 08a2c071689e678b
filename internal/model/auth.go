package model

import (
	"github.com/golang-jwt/jwt/v5"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ID          string `json:"id"`
	Role        string `json:"role"`
}

// TokenClaims represents JWT claims; Subject carries the user id
type TokenClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}
