// ABOUTME: Unit tests for JWT token verification, generation, and decoding
// ABOUTME: Tests valid tokens, invalid tokens, expired tokens, and claim sets

package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	verifier, err := NewJWTVerifier([]byte("test-secret-key-for-jwt-signing"))
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}
	return verifier
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	verifier := newTestVerifier(t)

	userID := "user-123"
	token, err := verifier.Generate(userID, time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	gotID, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if gotID != userID {
		t.Errorf("Verify() = %q, want %q", gotID, userID)
	}
}

func TestJWTVerifier_EmptySecret(t *testing.T) {
	_, err := NewJWTVerifier(nil)
	if !errors.Is(err, ErrEmptySecret) {
		t.Errorf("NewJWTVerifier(nil) error = %v, want ErrEmptySecret", err)
	}
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	verifier := newTestVerifier(t)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "garbage token",
			token: "not-a-jwt-token",
		},
		{
			name:  "malformed JWT",
			token: "header.payload.signature",
		},
		{
			name: "wrong secret",
			token: func() string {
				otherVerifier, _ := NewJWTVerifier([]byte("different-secret"))
				token, _ := otherVerifier.Generate("user-123", time.Hour)
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			if err == nil {
				t.Error("Verify() should have returned an error")
			}
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := verifier.Generate("user-123", -time.Minute)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = verifier.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTVerifier_MissingSubClaim(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := verifier.SignClaims(map[string]any{"projectId": "proj-1"}, time.Hour)
	if err != nil {
		t.Fatalf("SignClaims() error = %v", err)
	}

	_, err = verifier.Verify(token)
	if !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Verify() error = %v, want ErrMissingClaim", err)
	}
}

func TestJWTVerifier_SignClaims_RoundTrip(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := verifier.SignClaims(map[string]any{
		"projectId":       "proj-42",
		"loginToken":      "login-abc",
		"integrationName": "salesforce",
	}, time.Hour)
	if err != nil {
		t.Fatalf("SignClaims() error = %v", err)
	}

	claims, err := verifier.VerifyClaims(token)
	if err != nil {
		t.Fatalf("VerifyClaims() error = %v", err)
	}

	if claims["projectId"] != "proj-42" {
		t.Errorf("projectId = %v, want proj-42", claims["projectId"])
	}
	if claims["integrationName"] != "salesforce" {
		t.Errorf("integrationName = %v, want salesforce", claims["integrationName"])
	}
}

func TestDecode_Unverified(t *testing.T) {
	// Decode must work even when the signature does not match our secret
	otherVerifier, _ := NewJWTVerifier([]byte("some-other-secret"))
	token, err := otherVerifier.Generate("alice", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	claims, ok := Decode(token)
	if !ok {
		t.Fatal("Decode() should succeed on a structurally valid token")
	}
	if claims["sub"] != "alice" {
		t.Errorf("sub = %v, want alice", claims["sub"])
	}

	if got := DecodeSubject(token); got != "alice" {
		t.Errorf("DecodeSubject() = %q, want alice", got)
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, ok := Decode("not-a-jwt"); ok {
		t.Error("Decode() should fail on malformed input")
	}
	if got := DecodeSubject("not-a-jwt"); got != "" {
		t.Errorf("DecodeSubject() = %q, want empty", got)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
		wantErr   string
	}{
		{name: "valid", header: "Bearer abc123", wantToken: "abc123"},
		{name: "missing", header: "", wantErr: "missing authorization header"},
		{name: "wrong scheme", header: "Basic abc123", wantErr: "invalid authorization header format"},
		{name: "empty token", header: "Bearer ", wantErr: "empty token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, errMsg := ExtractBearerToken(tt.header)
			if token != tt.wantToken {
				t.Errorf("token = %q, want %q", token, tt.wantToken)
			}
			if errMsg != tt.wantErr {
				t.Errorf("errMsg = %q, want %q", errMsg, tt.wantErr)
			}
		})
	}
}
