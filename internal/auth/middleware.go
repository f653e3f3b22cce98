package auth

import (
	"net/http"
	"strings"
)

// Middleware validates operator JWTs and enforces role policy.
type Middleware struct {
	Secret []byte
	Policy Policy
}

// NewMiddleware constructs an operator auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

// Wrap applies auth and role checks to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseAdminToken(ExtractBearer(r), m.Secret)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		role, _ := NormalizeRole(claims.Role)
		if !RoleAtLeast(role, required) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ctx := WithIdentity(r.Context(), role, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceMiddleware validates tank node tokens and binds the tank identity
// to the request context.
type DeviceMiddleware struct {
	Secret []byte
}

// NewDeviceMiddleware constructs a device auth middleware.
func NewDeviceMiddleware(secret []byte) *DeviceMiddleware {
	return &DeviceMiddleware{Secret: secret}
}

// Wrap rejects requests without a valid device token.
func (m *DeviceMiddleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := ParseDeviceToken(ExtractBearer(r), m.Secret)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := WithDevice(r.Context(), claims.TankID, claims.TankName)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractBearer pulls the bearer token from the Authorization header.
func ExtractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
