package auth

import "context"

type contextKey string

const (
	contextKeyTankID   contextKey = "auth.tank_id"
	contextKeyTankName contextKey = "auth.tank_name"
	contextKeyRole     contextKey = "auth.role"
	contextKeySubject  contextKey = "auth.subject"
)

// WithDevice stores the authenticated tank identity in context.
func WithDevice(ctx context.Context, tankID, tankName string) context.Context {
	ctx = context.WithValue(ctx, contextKeyTankID, tankID)
	ctx = context.WithValue(ctx, contextKeyTankName, tankName)
	return ctx
}

// TankIDFromContext extracts the authenticated tank id from context.
func TankIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if tankID, ok := ctx.Value(contextKeyTankID).(string); ok {
		return tankID
	}
	return ""
}

// WithIdentity stores the operator identity in context.
func WithIdentity(ctx context.Context, role Role, subject string) context.Context {
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	return ctx
}

// RoleFromContext extracts the operator role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	if role, ok := value.(string); ok {
		if normalized, valid := NormalizeRole(role); valid {
			return normalized
		}
	}
	return ""
}

// SubjectFromContext extracts the operator subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if subject, ok := ctx.Value(contextKeySubject).(string); ok {
		return subject
	}
	return ""
}
