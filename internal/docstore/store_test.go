package docstore

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestClassifyAuthErrors(t *testing.T) {
	for _, code := range []string{"AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch"} {
		err := classify("fetch document", minio.ErrorResponse{Code: code, Message: "denied"})
		if !IsAuthError(err) {
			t.Errorf("code %s should classify as auth error, got %v", code, err)
		}
	}
}

func TestClassifyTransientErrors(t *testing.T) {
	base := minio.ErrorResponse{Code: "SlowDown", Message: "please retry"}
	err := classify("write document", base)
	if IsAuthError(err) {
		t.Fatalf("SlowDown should not be an auth error: %v", err)
	}
	if !errors.Is(err, error(base)) {
		t.Fatalf("classified error should wrap the original: %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}) {
		t.Fatal("NoSuchKey should read as not found")
	}
	if isNotFound(minio.ErrorResponse{Code: "NoSuchBucket"}) {
		t.Fatal("NoSuchBucket is a config problem, not an empty first run")
	}
}
