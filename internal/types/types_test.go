package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
)

func TestPubkeyRoundTrip(t *testing.T) {
	s := "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	p, err := PubkeyFromBase58(s)
	if err != nil {
		t.Fatalf("PubkeyFromBase58() error = %v", err)
	}
	if p.String() != s {
		t.Errorf("String() = %v, want %v", p.String(), s)
	}
	if p != TokenProgramAddr {
		t.Errorf("parsed pubkey differs from TokenProgramAddr")
	}
	if !IsTokenProgram(p) || !IsTokenProgram(Token2022ProgramAddr) || IsTokenProgram(SystemProgramAddr) {
		t.Error("IsTokenProgram() misclassified a program")
	}
}

func TestPubkeyFromBase58_BadLength(t *testing.T) {
	_, err := PubkeyFromBase58(base58.Encode([]byte{1, 2, 3}))
	if !errors.Is(err, ErrInvalidPubkey) {
		t.Errorf("PubkeyFromBase58() error = %v, want %v", err, ErrInvalidPubkey)
	}
	if _, err := PubkeyFromBase58("0OIl"); err == nil {
		t.Error("PubkeyFromBase58() should reject invalid base58")
	}
}

func TestFromBytes(t *testing.T) {
	if _, err := PubkeyFromBytes(make([]byte, 31)); !errors.Is(err, ErrInvalidPubkey) {
		t.Errorf("PubkeyFromBytes(31) error = %v", err)
	}
	if _, err := SignatureFromBytes(make([]byte, 32)); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("SignatureFromBytes(32) error = %v", err)
	}
	if _, err := HashFromBytes(make([]byte, 64)); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("HashFromBytes(64) error = %v", err)
	}

	h, err := HashFromBytes(make([]byte, 32))
	if err != nil || !h.IsZero() {
		t.Errorf("HashFromBytes(zero) = %v, %v", h, err)
	}
}

func TestSignatureFromBase58(t *testing.T) {
	raw := make([]byte, SignatureSize)
	raw[0] = 42
	sig, err := SignatureFromBase58(base58.Encode(raw))
	if err != nil {
		t.Fatalf("SignatureFromBase58() error = %v", err)
	}
	if sig[0] != 42 || sig.IsZero() {
		t.Errorf("SignatureFromBase58() = %v", sig)
	}
	if _, err := SignatureFromBase58(base58.Encode(raw[:32])); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("SignatureFromBase58(32 bytes) error = %v", err)
	}
}

func TestJSONText(t *testing.T) {
	in := struct {
		Owner Pubkey `json:"owner"`
		Hash  Hash   `json:"hash"`
	}{Owner: SystemProgramAddr}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"owner":"11111111111111111111111111111111","hash":"11111111111111111111111111111111"}`
	if string(b) != want {
		t.Errorf("Marshal() = %s, want %s", b, want)
	}

	var out struct {
		Owner Pubkey `json:"owner"`
		Hash  Hash   `json:"hash"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.Owner != in.Owner {
		t.Errorf("Unmarshal() owner = %v, want %v", out.Owner, in.Owner)
	}
}
