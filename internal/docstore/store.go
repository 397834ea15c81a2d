// Package docstore reads and writes the shared planner document as a single
// JSON object in an S3-compatible bucket. There is no server-side
// read-modify-write: callers must merge immediately before every write.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"postpilot/internal/document"
)

// Receipt describes a completed write.
type Receipt struct {
	ETag      string
	Size      int64
	WrittenAt time.Time
}

// Store holds the document as one object in one bucket.
type Store struct {
	client *minio.Client
	bucket string
	object string
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Object    string
	UseSSL    bool
}

// New creates a blob-backed document store. The connection is lazy; use Ping
// to verify reachability.
func New(opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &Store{client: client, bucket: opts.Bucket, object: opts.Object}, nil
}

// Fetch reads the current document. A missing object is a valid first-run
// state and returns (nil, nil), not an error.
func (s *Store) Fetch(ctx context.Context) (*document.Document, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify("fetch document", err)
	}
	defer obj.Close()

	payload, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, classify("read document", err)
	}

	var doc document.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// Write overwrites the whole document with one PUT.
func (s *Store) Write(ctx context.Context, doc *document.Document) (Receipt, error) {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Receipt{}, fmt.Errorf("encode document: %w", err)
	}

	info, err := s.client.PutObject(ctx, s.bucket, s.object,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return Receipt{}, classify("write document", err)
	}
	return Receipt{ETag: info.ETag, Size: info.Size, WrittenAt: time.Now()}, nil
}

// Ping checks bucket reachability.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return classify("check bucket", err)
	}
	if !ok {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

// AuthError marks failures the operator must fix (bad keys, denied access).
// Everything else is assumed transient and safe to retry.
type AuthError struct {
	Op   string
	Code string
	err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.err)
}

func (e *AuthError) Unwrap() error { return e.err }

// IsAuthError reports whether err is a credential or access configuration
// failure rather than a transient network error.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}

func classify(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AccountProblem":
		return &AuthError{Op: op, Code: resp.Code, err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
