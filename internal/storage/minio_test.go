package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestParseBucketLookup(t *testing.T) {
	cases := map[string]minio.BucketLookupType{
		"":      minio.BucketLookupAuto,
		"auto":  minio.BucketLookupAuto,
		" DNS ": minio.BucketLookupDNS,
		"path":  minio.BucketLookupPath,
		"PATH":  minio.BucketLookupPath,
	}
	for in, want := range cases {
		got, err := parseBucketLookup(in)
		if err != nil || got != want {
			t.Errorf("parseBucketLookup(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := parseBucketLookup("virtual"); err == nil {
		t.Fatalf("expected error for unknown lookup")
	}
}

func TestIsNoSuchKey(t *testing.T) {
	if IsNoSuchKey(nil) {
		t.Fatalf("nil is not NoSuchKey")
	}
	wrapped := fmt.Errorf("remove: %w", minio.ErrorResponse{Code: "NoSuchKey"})
	if !IsNoSuchKey(wrapped) {
		t.Fatalf("expected wrapped ErrorResponse to match")
	}
	if !IsNoSuchKey(errors.New("The specified key does not exist.")) {
		t.Fatalf("expected message match")
	}
	if IsNoSuchKey(minio.ErrorResponse{Code: "AccessDenied"}) {
		t.Fatalf("AccessDenied must not match")
	}
}

func TestExportObjectKey(t *testing.T) {
	if got := ExportObjectKey(7, "abc"); got != "exports/7/abc.tex" {
		t.Fatalf("unexpected key %q", got)
	}
}
