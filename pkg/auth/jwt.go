package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// StaffClaims identifies the staff member behind a request. The subject
// becomes the audit actor.
type StaffClaims struct {
	Name           string `json:"name,omitempty"`
	Role           string `json:"role,omitempty"`
	ClinicLocation string `json:"clinic_location,omitempty"`
	jwt.RegisteredClaims
}

type JWTService interface {
	GenerateToken(subject, name, role, location string, ttl time.Duration) (string, error)
	ValidateToken(token string) (*StaffClaims, error)
}

type jwtService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTService(secret, issuer string) JWTService {
	return &jwtService{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func (s *jwtService) GenerateToken(subject, name, role, location string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := StaffClaims{
		Name:           name,
		Role:           role,
		ClinicLocation: location,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *jwtService) ValidateToken(tokenString string) (*StaffClaims, error) {
	claims := &StaffClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
