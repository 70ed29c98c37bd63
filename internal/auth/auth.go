package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDentist      Role = "dentist"
	RoleHygienist    Role = "hygienist"
	RoleAssistant    Role = "assistant"
	RoleReceptionist Role = "receptionist"
	RolePatient      Role = "patient"
)

// StaffRoles may manage any appointment of their clinic.
var StaffRoles = []Role{RoleAdmin, RoleDentist, RoleHygienist, RoleAssistant, RoleReceptionist}

func (r Role) IsStaff() bool {
	return slices.Contains(StaffRoles, r)
}

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID   uuid.UUID
	Role     Role
	ClinicID uuid.UUID
}

type Claims struct {
	jwt.RegisteredClaims
	Role     string `json:"role"`
	ClinicID string `json:"clinic_id"`
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Issuer is the iss claim stamped on tokens issued by this service.
const Issuer = "topsmile-scheduling"

// Tokens issues and verifies HS256 bearer tokens.
type Tokens struct {
	secret []byte
	issuer string
}

func NewTokens(secret, issuer string) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer}
}

func (t *Tokens) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:     string(id.Role),
		ClinicID: id.ClinicID.String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *Tokens) Parse(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	clinicID, err := uuid.Parse(claims.ClinicID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: bad clinic", ErrInvalidToken)
	}
	role := Role(claims.Role)
	if !role.IsStaff() && role != RolePatient {
		return Identity{}, fmt.Errorf("%w: unknown role", ErrInvalidToken)
	}

	return Identity{UserID: userID, Role: role, ClinicID: clinicID}, nil
}
