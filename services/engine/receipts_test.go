package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	gos3 "kioskd/pkg/s3"
)

func newArchiveFixture(t *testing.T) *ReceiptArchive {
	t.Helper()
	t.Setenv("AWS_CA_BUNDLE", "")
	t.Setenv("S3_ENDPOINT", "http://127.0.0.1:9000")
	t.Setenv("S3_ACCESS_KEY", "test-access")
	t.Setenv("S3_SECRET_KEY", "test-secret")

	client, err := gos3.NewClientFromEnv()
	if err != nil {
		t.Fatalf("NewClientFromEnv: %v", err)
	}
	archive, err := NewReceiptArchive(client, "receipts")
	if err != nil {
		t.Fatalf("NewReceiptArchive: %v", err)
	}
	return archive
}

// URLs must resolve for receipts archived by earlier processes, so the
// object key has to follow from the identifier alone.
func TestPresignURLDerivesKeyFromID(t *testing.T) {
	archive := newArchiveFixture(t)

	id := uuid.New()
	url, err := archive.PresignURL(context.Background(), id.String(), 15*time.Minute)
	if err != nil {
		t.Fatalf("PresignURL: %v", err)
	}
	if !strings.Contains(url, receiptKey(id)) {
		t.Fatalf("presigned URL %q does not reference key %q", url, receiptKey(id))
	}
}

func TestPresignURLRejectsMalformedID(t *testing.T) {
	archive := newArchiveFixture(t)

	if _, err := archive.PresignURL(context.Background(), "not-a-receipt", time.Minute); err == nil {
		t.Fatal("PresignURL accepted a malformed identifier")
	}
}
