package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceClaims are the JWT claims carried by a tank node token. The token
// binds the tank id at registration; re-registration with a still-valid
// token returns the same token unchanged.
type DeviceClaims struct {
	TankID   string `json:"tank_id"`
	TankName string `json:"tank_name"`
	jwt.RegisteredClaims
}

// AdminClaims are the JWT claims carried by an operator console token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// MintDeviceToken signs a device token bound to a tank id.
func MintDeviceToken(secret []byte, tankID, tankName string, issuedAt time.Time, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("auth: empty secret")
	}
	if tankID == "" {
		return "", errors.New("auth: empty tank id")
	}
	claims := DeviceClaims{
		TankID:   tankID,
		TankName: tankName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tankID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// MintAdminToken signs an operator console token carrying a role.
func MintAdminToken(secret []byte, subject, role string, issuedAt time.Time, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("auth: empty secret")
	}
	if _, ok := NormalizeRole(role); !ok {
		return "", errors.New("auth: unknown role")
	}
	claims := AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseDeviceToken validates a device token and returns its claims.
func ParseDeviceToken(tokenString string, secret []byte) (*DeviceClaims, error) {
	claims := &DeviceClaims{}
	if err := parseHS256(tokenString, secret, claims); err != nil {
		return nil, err
	}
	if claims.TankID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseAdminToken validates an operator token and returns its claims.
func ParseAdminToken(tokenString string, secret []byte) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if err := parseHS256(tokenString, secret, claims); err != nil {
		return nil, err
	}
	if _, ok := NormalizeRole(claims.Role); !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func parseHS256(tokenString string, secret []byte, claims jwt.Claims) error {
	if tokenString == "" {
		return ErrInvalidToken
	}
	if len(secret) == 0 {
		return errors.New("auth: empty secret")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// TokenExpired reports whether a previously minted token is past its
// expiry at the given instant. Expiry is checked against the caller's
// clock, not the parser's. Malformed tokens count as expired so a
// re-registration always recovers.
func TokenExpired(tokenString string, secret []byte, now time.Time) bool {
	if tokenString == "" || len(secret) == 0 {
		return true
	}
	claims := &DeviceClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil || !token.Valid || claims.TankID == "" {
		return true
	}
	return claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Time)
}
