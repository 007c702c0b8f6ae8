package logging

import "testing"

func TestMaskFieldRedactsUnknownKeys(t *testing.T) {
	attr := MaskField("secret", "tranche-preimage")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("secret value survived: %q", attr.Value.String())
	}

	attr = MaskField("orderHash", "0xabc123")
	if attr.Value.String() != "0xabc123" {
		t.Fatalf("allowlisted key was masked: %q", attr.Value.String())
	}

	// Empty values pass through so absent fields stay readable.
	attr = MaskField("secret", "")
	if attr.Value.String() != "" {
		t.Fatalf("empty value was rewritten: %q", attr.Value.String())
	}
}

func TestRedactionAllowlistCoversOperationalKeys(t *testing.T) {
	for _, key := range []string{"orderHash", "escrowId", "address", "network", "type"} {
		if !IsAllowlisted(key) {
			t.Fatalf("key %q missing from allowlist", key)
		}
	}
	if IsAllowlisted("hashlock") || IsAllowlisted("secret") {
		t.Fatal("sensitive keys must not be allowlisted")
	}
}
