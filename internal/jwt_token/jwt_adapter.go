package jwttoken

import (
	"strings"

	dErrors "splitgroups/pkg/domain-errors"
	authmw "splitgroups/pkg/platform/middleware/auth"
)

// Validator exposes JWTService to the auth middleware, which only needs the
// caller's user ID and plan.
type Validator struct {
	service *JWTService
}

func NewValidator(service *JWTService) *Validator {
	return &Validator{service: service}
}

func (v *Validator) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := v.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return &authmw.JWTClaims{
		UserID: claims.Subject,
		Plan:   strings.ToUpper(strings.TrimSpace(claims.Plan)),
	}, nil
}
