package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenVerifier_IssueAndVerify(t *testing.T) {
	v := NewTokenVerifier("test-secret", "spinwheel")

	token, err := v.Issue(User{ID: "user-42", DisplayName: "Alice"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	user, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if user.ID != "user-42" || user.DisplayName != "Alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestTokenVerifier_RejectsBadTokens(t *testing.T) {
	v := NewTokenVerifier("test-secret", "spinwheel")
	other := NewTokenVerifier("other-secret", "spinwheel")

	wrongKey, err := other.Issue(User{ID: "user-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	past := NewTokenVerifier("test-secret", "spinwheel")
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := past.Issue(User{ID: "user-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "spinwheel",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	for name, token := range map[string]string{
		"garbage":    "not-a-token",
		"wrong key":  wrongKey,
		"expired":    expired,
		"no subject": noSubject,
	} {
		if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: got=%v want=%v", name, err, ErrInvalidToken)
		}
	}
}

func TestTokenVerifier_NoSecret(t *testing.T) {
	v := NewTokenVerifier("", "")
	if _, err := v.Verify("x"); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("got=%v want=%v", err, ErrNoSecret)
	}
}

func TestSession_SubscribeAndSignOut(t *testing.T) {
	v := NewTokenVerifier("test-secret", "")
	s := NewSession(v)

	var seen []string
	unsubscribe := s.Subscribe(func(u *User) {
		if u == nil {
			seen = append(seen, "")
			return
		}
		seen = append(seen, u.ID)
	})

	token, err := v.Issue(User{ID: "user-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	info, err := s.SignIn(token)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if info.SessionID == "" || info.User == nil || info.User.ID != "user-1" {
		t.Fatalf("unexpected session info: %+v", info)
	}

	// 同じユーザーの再ログインでは通知しない
	if _, err := s.SignIn(token); err != nil {
		t.Fatalf("second SignIn failed: %v", err)
	}

	s.SignOut()
	s.SignOut()
	if s.CurrentUser() != nil {
		t.Fatalf("user should be cleared after sign out")
	}

	unsubscribe()
	s.SetUser(User{ID: "user-2"})

	want := []string{"", "user-1", ""}
	if len(seen) != len(want) {
		t.Fatalf("unexpected notifications: got=%v want=%v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("unexpected notification %d: got=%q want=%q", i, seen[i], want[i])
		}
	}
}

func TestSession_SignInRejectsInvalidToken(t *testing.T) {
	s := NewSession(NewTokenVerifier("test-secret", ""))
	if _, err := s.SignIn("bogus"); err == nil {
		t.Fatalf("expected error for invalid token")
	}
	if s.CurrentUser() != nil {
		t.Fatalf("no user should be signed in")
	}
}
