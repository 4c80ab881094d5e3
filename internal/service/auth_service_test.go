package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
)

func newAuthService(now time.Time) *AuthService {
	s := NewAuthService(&config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: 4,
	}, nil)
	s.now = func() time.Time { return now }
	return s
}

func TestStaffTokenRoundTrip(t *testing.T) {
	s := newAuthService(time.Now())

	token, err := s.GenerateStaffToken(3, 2, []string{"tests:read", "proctoring:reset"})
	if err != nil {
		t.Fatalf("GenerateStaffToken: %v", err)
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.TokenType != TokenTypeStaff || claims.UserID != 3 || claims.RoleID != 2 {
		t.Errorf("claims = %+v", claims)
	}
	if !claims.HasPermission("proctoring:reset") || claims.HasPermission("tests:write") {
		t.Errorf("permissions = %v", claims.Permissions)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	issued := time.Now()
	s := newAuthService(issued)
	token, err := s.GenerateStaffToken(1, 1, nil)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("expired", func(t *testing.T) {
		later := newAuthService(issued.Add(2 * time.Hour))
		if _, err := later.ValidateToken(token); err == nil {
			t.Error("expired token accepted")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := newAuthService(issued)
		other.cfg = &config.Config{JWTSecret: "other", JWTExpiry: time.Hour}
		if _, err := other.ValidateToken(token); err == nil {
			t.Error("token signed with another secret accepted")
		}
	})

	t.Run("tampered", func(t *testing.T) {
		parts := strings.Split(token, ".")
		parts[1] = parts[1] + "x"
		if _, err := s.ValidateToken(strings.Join(parts, ".")); err == nil {
			t.Error("tampered token accepted")
		}
	})
}

func TestPasswordHashing(t *testing.T) {
	s := newAuthService(time.Now())
	hash, err := s.HashPassword("rahasia123")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CheckPassword(hash, "rahasia123"); err != nil {
		t.Errorf("CheckPassword(correct) = %v", err)
	}
	if err := s.CheckPassword(hash, "wrong"); err != ErrInvalidCredentials {
		t.Errorf("CheckPassword(wrong) = %v, want ErrInvalidCredentials", err)
	}
}
