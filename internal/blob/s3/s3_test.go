package s3blob

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestNormaliseEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		ssl  bool
		want string
	}{
		{"https://e2.example.com", false, "https://e2.example.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"minio:9000", true, "https://minio:9000"},
		{"s3.example.com", true, "https://s3.example.com"},
	}
	for _, tc := range cases {
		if got := normaliseEndpoint(tc.in, tc.ssl); got != tc.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tc.in, tc.ssl, got, tc.want)
		}
	}
}

type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func TestIsNotFound(t *testing.T) {
	if !isNotFound(fmt.Errorf("wrap: %w", &types.NoSuchKey{})) {
		t.Error("NoSuchKey not matched")
	}
	if !isNotFound(&types.NotFound{}) {
		t.Error("NotFound not matched")
	}
	if !isNotFound(fmt.Errorf("op: %w", statusErr(404))) {
		t.Error("404 not matched")
	}
	if isNotFound(statusErr(403)) || isNotFound(errors.New("boom")) {
		t.Error("false positive")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(context.Background(), ClientConfig{Region: "us-east-1"}); err == nil {
		t.Error("missing bucket accepted")
	}
	if _, err := New(context.Background(), ClientConfig{Bucket: "b"}); err == nil {
		t.Error("missing region accepted")
	}
}
