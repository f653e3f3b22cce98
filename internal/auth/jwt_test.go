package auth

import (
	"testing"
	"time"
)

var testSecret = []byte("unit-test-secret")

func TestDeviceTokenRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	token, err := MintDeviceToken(testSecret, "tank-1", "alpha", now, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := ParseDeviceToken(token, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.TankID != "tank-1" || claims.TankName != "alpha" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestDeviceTokenWrongSecret(t *testing.T) {
	now := time.Now().UTC()
	token, err := MintDeviceToken(testSecret, "tank-1", "alpha", now, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseDeviceToken(token, []byte("other-secret")); err == nil {
		t.Fatalf("expected parse failure with wrong secret")
	}
}

func TestDeviceTokenExpiredRejected(t *testing.T) {
	issued := time.Now().UTC().Add(-2 * time.Hour)
	token, err := MintDeviceToken(testSecret, "tank-1", "alpha", issued, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseDeviceToken(token, testSecret); err == nil {
		t.Fatalf("expected expired token rejected")
	}
}

func TestTokenExpiredUsesCallerClock(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	token, err := MintDeviceToken(testSecret, "tank-1", "alpha", issued, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if TokenExpired(token, testSecret, issued.Add(30*time.Minute)) {
		t.Fatalf("token must be valid before its expiry instant")
	}
	if !TokenExpired(token, testSecret, issued.Add(2*time.Hour)) {
		t.Fatalf("token must be expired after its expiry instant")
	}
}

func TestTokenExpiredMalformed(t *testing.T) {
	now := time.Now().UTC()
	if !TokenExpired("", testSecret, now) {
		t.Fatalf("empty token must count as expired")
	}
	if !TokenExpired("not-a-jwt", testSecret, now) {
		t.Fatalf("garbage token must count as expired")
	}

	token, err := MintDeviceToken(testSecret, "tank-1", "alpha", now, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !TokenExpired(token, []byte("other-secret"), now) {
		t.Fatalf("token signed with another secret must count as expired")
	}
}

func TestAdminTokenRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	token, err := MintAdminToken(testSecret, "ops@example.com", "operator", now, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := ParseAdminToken(token, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != "operator" || claims.Subject != "ops@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestMintAdminTokenRejectsUnknownRole(t *testing.T) {
	if _, err := MintAdminToken(testSecret, "x", "superuser", time.Now(), time.Hour); err == nil {
		t.Fatalf("expected unknown role rejected")
	}
}

func TestRoleAtLeast(t *testing.T) {
	cases := []struct {
		have, need Role
		want       bool
	}{
		{RoleViewer, RoleViewer, true},
		{RoleViewer, RoleOperator, false},
		{RoleOperator, RoleViewer, true},
		{RoleOperator, RoleAdmin, false},
		{RoleAdmin, RoleOperator, true},
	}
	for _, tc := range cases {
		if got := RoleAtLeast(tc.have, tc.need); got != tc.want {
			t.Fatalf("RoleAtLeast(%s, %s) = %v, want %v", tc.have, tc.need, got, tc.want)
		}
	}
}
