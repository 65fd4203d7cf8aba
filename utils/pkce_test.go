package utils

import "testing"

func TestGenerateCodeVerifierLength(t *testing.T) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier: %v", err)
	}
	// 32 bytes base64url without padding is always 43 characters
	if len(verifier) != 43 {
		t.Fatalf("expected 43 characters, got %d: %q", len(verifier), verifier)
	}
}

func TestGenerateCodeVerifierUnique(t *testing.T) {
	a, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier: %v", err)
	}
	b, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier: %v", err)
	}
	if a == b {
		t.Fatal("two verifiers should never collide")
	}
}

func TestCodeChallengeS256KnownVector(t *testing.T) {
	// RFC 7636 appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := CodeChallengeS256(verifier); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
