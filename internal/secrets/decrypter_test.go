package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func sealForTest(t *testing.T, hexKey, plain string) string {
	t.Helper()
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("gcm: %v", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		t.Fatalf("nonce: %v", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed)
}

func TestAESGCMRoundTrip(t *testing.T) {
	key := "6368616e676520746869732070617373776f726420746f206120736563726574"
	d, err := NewAESGCM(key)
	if err != nil {
		t.Fatalf("new decrypter: %v", err)
	}
	sealed := sealForTest(t, key, "acct_test_123")
	plain, err := d.Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "acct_test_123" {
		t.Fatalf("expected acct_test_123, got %q", plain)
	}
}

func TestAESGCMRejectsBadKey(t *testing.T) {
	if _, err := NewAESGCM("abcd"); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestAESGCMRejectsGarbage(t *testing.T) {
	key := "6368616e676520746869732070617373776f726420746f206120736563726574"
	d, err := NewAESGCM(key)
	if err != nil {
		t.Fatalf("new decrypter: %v", err)
	}
	if _, err := d.Decrypt("not-base64!!"); err == nil {
		t.Fatal("expected error for invalid payload")
	}
}

func TestPlaintextPassthrough(t *testing.T) {
	got, err := Plaintext{}.Decrypt("value")
	if err != nil || got != "value" {
		t.Fatalf("expected passthrough, got %q err %v", got, err)
	}
}
