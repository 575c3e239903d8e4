package secrets

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	token, salt, err := Encrypt("binance-api-key", "hunter2")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if token == "" || salt == "" {
		t.Fatalf("expected token and salt, got %q / %q", token, salt)
	}

	plaintext, err := Decrypt(token, salt, "hunter2")
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if plaintext != "binance-api-key" {
		t.Fatalf("unexpected plaintext: %q", plaintext)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	token, salt, err := Encrypt("secret", "right")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if _, err := Decrypt(token, salt, "wrong"); err == nil {
		t.Fatalf("expected error with wrong password")
	}
}

func TestDecryptBadSalt(t *testing.T) {
	if _, err := Decrypt("token", "not-base64!!", "pw"); err == nil {
		t.Fatalf("expected error for malformed salt")
	}
}

func TestEncryptSaltsAreUnique(t *testing.T) {
	_, salt1, err := Encrypt("secret", "pw")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	_, salt2, err := Encrypt("secret", "pw")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if salt1 == salt2 {
		t.Fatalf("expected unique salts per encryption")
	}
}
