package sasl

import (
	"encoding/base64"
	"testing"
)

func TestPlain_Name(t *testing.T) {
	p := NewPlain("user", "pass")
	if p.Name() != "PLAIN" {
		t.Errorf("expected PLAIN, got %s", p.Name())
	}
}

func TestPlain_Start(t *testing.T) {
	p := NewPlain("user@example.com", "secret123")
	if p.Done() {
		t.Fatal("expected Done to be false before Start")
	}

	resp, err := p.Start()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp) != "\x00user@example.com\x00secret123" {
		t.Errorf("unexpected initial response %q", resp)
	}
	if !p.Done() {
		t.Error("expected Done after Start")
	}

	encoded := base64.StdEncoding.EncodeToString(resp)
	if encoded != "AHVzZXJAZXhhbXBsZS5jb20Ac2VjcmV0MTIz" {
		t.Errorf("unexpected encoding %s", encoded)
	}
}

func TestPlain_EmptyChallenge(t *testing.T) {
	p := NewPlain("user", "pass")
	resp, err := p.Next(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp) != "\x00user\x00pass" {
		t.Errorf("unexpected response %q", resp)
	}

	if _, err := NewPlain("user", "pass").Next([]byte("prompt")); err != ErrUnexpectedChallenge {
		t.Errorf("expected ErrUnexpectedChallenge, got %v", err)
	}
}

func TestLogin_Flow(t *testing.T) {
	l := NewLogin("user@example.com", "secret123")
	if l.Name() != "LOGIN" {
		t.Errorf("expected LOGIN, got %s", l.Name())
	}

	ir, err := l.Start()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ir != nil {
		t.Errorf("expected no initial response, got %q", ir)
	}

	userPrompt, _ := base64.StdEncoding.DecodeString(LoginChallengeUsername)
	resp, err := l.Next(userPrompt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp) != "user@example.com" {
		t.Errorf("expected username, got %q", resp)
	}
	if l.Done() {
		t.Error("expected Done to be false after username")
	}

	passPrompt, _ := base64.StdEncoding.DecodeString(LoginChallengePassword)
	resp, err = l.Next(passPrompt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp) != "secret123" {
		t.Errorf("expected password, got %q", resp)
	}
	if !l.Done() {
		t.Error("expected Done after password")
	}

	if _, err := l.Next([]byte("again")); err != ErrUnexpectedChallenge {
		t.Errorf("expected ErrUnexpectedChallenge, got %v", err)
	}
}

func TestCRAMMD5(t *testing.T) {
	// Example from RFC 2195 Section 2.
	challenge := []byte("<1896.697170952@postoffice.reston.mci.net>")
	c := NewCRAMMD5("tim", "tanstaaftanstaaf")
	if c.Name() != "CRAM-MD5" {
		t.Errorf("expected CRAM-MD5, got %s", c.Name())
	}

	ir, err := c.Start()
	if err != nil || ir != nil {
		t.Fatalf("expected no initial response, got %q, %v", ir, err)
	}

	resp, err := c.Next(challenge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "tim b913a602c7eda7a495b4e6e7334d3890"
	if string(resp) != want {
		t.Errorf("expected %q, got %q", want, resp)
	}
	if !c.Done() {
		t.Error("expected Done after response")
	}
	if _, err := c.Next(challenge); err != ErrUnexpectedChallenge {
		t.Errorf("expected ErrUnexpectedChallenge on second challenge, got %v", err)
	}
}

func TestNew(t *testing.T) {
	creds := Credentials{Username: "u", Password: "p"}
	for _, name := range []string{MechanismPlain, MechanismLogin, MechanismCRAMMD5} {
		m, err := New(name, creds)
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		if m.Name() != name {
			t.Errorf("New(%s).Name() = %s", name, m.Name())
		}
	}

	if _, err := New("XOAUTH2", creds); err == nil {
		t.Error("expected error for unknown mechanism")
	}
	if _, err := New(MechanismPlain, Credentials{}); err != ErrMissingCredentials {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}
