package postgres

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestReceiptKeyFormat(t *testing.T) {
	content := []byte("receipt scan bytes")
	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:])

	key := fmt.Sprintf("receipts/sha256/%s/%s", hashStr[:2], hashStr[2:])

	if !strings.HasPrefix(key, "receipts/sha256/") {
		t.Errorf("Expected receipts/sha256/ prefix, got %s", key)
	}

	parts := strings.Split(key, "/")
	if len(parts) != 4 {
		t.Fatalf("Expected 4 path segments, got %d: %s", len(parts), key)
	}
	if len(parts[2]) != 2 {
		t.Errorf("Expected 2-char fanout segment, got %s", parts[2])
	}
	if len(parts[3]) != 62 {
		t.Errorf("Expected 62-char hash remainder, got %d chars", len(parts[3]))
	}
	if parts[2]+parts[3] != hashStr {
		t.Error("Fanout segments should reassemble into the full hash")
	}
}

func TestReceiptHashDeterminism(t *testing.T) {
	content := []byte("same receipt uploaded twice")

	h1 := sha256.Sum256(content)
	h2 := sha256.Sum256(content)
	if hex.EncodeToString(h1[:]) != hex.EncodeToString(h2[:]) {
		t.Error("Identical content must hash to the same key")
	}

	h3 := sha256.Sum256([]byte("different receipt"))
	if hex.EncodeToString(h1[:]) == hex.EncodeToString(h3[:]) {
		t.Error("Different content must hash to different keys")
	}
}

func TestExportKeyFormat(t *testing.T) {
	key := fmt.Sprintf("exports/%s/%s", "user-1", "sales-2026-06.xlsx")

	if key != "exports/user-1/sales-2026-06.xlsx" {
		t.Errorf("Unexpected export key: %s", key)
	}
	if !strings.HasPrefix(key, "exports/user-1/") {
		t.Error("Export keys must be scoped by owner")
	}
}

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"head object 404", errors.New("operation error S3: HeadObject, https response error StatusCode: 404, api error NotFound"), true},
		{"no such key", errors.New("NoSuchKey: The specified key does not exist"), true},
		{"access denied", errors.New("AccessDenied: not authorized"), false},
		{"generic failure", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFoundError(tt.err); got != tt.want {
				t.Errorf("isNotFoundError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsBucketAlreadyExistsError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"already exists", errors.New("BucketAlreadyExists: bucket name taken"), true},
		{"owned by you", errors.New("BucketAlreadyOwnedByYou: you already own it"), true},
		{"other error", errors.New("SlowDown: reduce request rate"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBucketAlreadyExistsError(tt.err); got != tt.want {
				t.Errorf("isBucketAlreadyExistsError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
