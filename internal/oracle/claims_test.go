package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func TestClaimOracle_IsValid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{
			name:  "expires in the future",
			value: signed(t, jwt.MapClaims{"sub": "u", "exp": now.Add(time.Hour).Unix()}),
			want:  true,
		},
		{
			name:  "expires one second from now",
			value: signed(t, jwt.MapClaims{"exp": now.Add(time.Second).Unix()}),
			want:  true,
		},
		{
			name:  "expires exactly now",
			value: signed(t, jwt.MapClaims{"exp": now.Unix()}),
			want:  false,
		},
		{
			name:  "expired",
			value: signed(t, jwt.MapClaims{"exp": now.Add(-time.Second).Unix()}),
			want:  false,
		},
		{
			name:  "no exp claim",
			value: signed(t, jwt.MapClaims{"sub": "u"}),
			want:  false,
		},
		{
			name:  "exp is not numeric",
			value: signed(t, jwt.MapClaims{"exp": "tomorrow"}),
			want:  false,
		},
		{
			name:  "not a jwt",
			value: "auth_prod_cookie_value",
			want:  false,
		},
		{
			name:  "three garbage segments",
			value: "eyJ.###.sig",
			want:  false,
		},
		{
			name:  "empty",
			value: "",
			want:  false,
		},
	}

	o := &ClaimOracle{Now: func() time.Time { return now }}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := o.IsValid(context.Background(), &core.Token{Value: tt.value})
			if got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClaimOracle_NilToken(t *testing.T) {
	if NewClaimOracle().IsValid(context.Background(), nil) {
		t.Error("nil token must be invalid")
	}
}

func TestExpiryOf(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	got, ok := ExpiryOf(signed(t, jwt.MapClaims{"exp": exp.Unix()}))
	if !ok {
		t.Fatal("expected expiry")
	}
	if !got.Equal(exp) {
		t.Errorf("ExpiryOf() = %v, want %v", got, exp)
	}

	if _, ok := ExpiryOf("opaque"); ok {
		t.Error("opaque value must not have an expiry")
	}
}
