package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Gamma101/web-chat/internal/apperr"
	"github.com/Gamma101/web-chat/internal/session"
)

func TestIssueAndVerify(t *testing.T) {
	m := session.NewManager("test-secret", time.Hour)
	token, err := m.IssueToken("user-1", "u1@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	sess, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sess.UserID != "user-1" || sess.Email != "u1@example.com" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := session.NewManager("test-secret", time.Hour)
	if _, err := m.Verify("not-a-token"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	other := session.NewManager("other-secret", time.Hour)
	token, _ := other.IssueToken("user-1", "u1@example.com")

	m := session.NewManager("test-secret", time.Hour)
	if _, err := m.Verify(token); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSignOutRevokesToken(t *testing.T) {
	m := session.NewManager("test-secret", time.Hour)
	token, _ := m.IssueToken("user-1", "u1@example.com")
	if err := m.SignOut(token); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := m.Verify(token); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected signed-out token to be rejected, got %v", err)
	}
}

func TestAuthStateListeners(t *testing.T) {
	m := session.NewManager("test-secret", time.Hour)
	var events []string
	m.OnAuthStateChange(func(s *session.Session) {
		if s == nil {
			events = append(events, "out")
		} else {
			events = append(events, "in:"+s.UserID)
		}
	})
	token, _ := m.IssueToken("user-1", "u1@example.com")
	_ = m.SignOut(token)

	if len(events) != 2 || events[0] != "in:user-1" || events[1] != "out" {
		t.Fatalf("unexpected auth events %v", events)
	}
}
