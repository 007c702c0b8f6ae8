package crypto

import (
	"bytes"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x5A}, 20)
	addr := NewAddress(AccountPrefix, raw)

	encoded := addr.String()
	if !strings.HasPrefix(encoded, "clk1") {
		t.Fatalf("encoded address %q missing clk prefix", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("DecodeAddress: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("round trip changed the address bytes")
	}
	if decoded.Prefix() != AccountPrefix {
		t.Fatalf("prefix = %q, want %q", decoded.Prefix(), AccountPrefix)
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-bech32"); err == nil {
		t.Fatalf("garbage input must fail")
	}
	if _, err := DecodeAddress("clk1qqqq"); err == nil {
		t.Fatalf("truncated payload must fail")
	}
}

func TestSignRecoversToAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	digest := ethcrypto.Keccak256([]byte("payload"))

	sig, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}

	recovered, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	want := key.PubKey().Address()
	got := ethcrypto.PubkeyToAddress(*recovered)
	if !bytes.Equal(got.Bytes(), want.Bytes()) {
		t.Fatalf("recovered address %x, want %x", got.Bytes(), want.Bytes())
	}
}

func TestPrivateKeyFromBytesRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}
	if !bytes.Equal(restored.PubKey().Address().Bytes(), key.PubKey().Address().Bytes()) {
		t.Fatalf("restored key derives a different address")
	}
}
