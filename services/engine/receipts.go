package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"kioskd/pkg/channel"
	"kioskd/pkg/render"
	gos3 "kioskd/pkg/s3"
)

// ReceiptArchive renders session receipts and archives them to object
// storage so staff can re-print them later. The object key is derived
// from the receipt identifier alone, so URLs can be issued for
// receipts archived before the current process started.
type ReceiptArchive struct {
	renderer *render.Engine
	s3       *gos3.Client
	bucket   string
	now      func() time.Time
}

func NewReceiptArchive(s3Client *gos3.Client, bucket string) (*ReceiptArchive, error) {
	if s3Client == nil {
		return nil, errors.New("s3 client is required")
	}
	if bucket == "" {
		return nil, errors.New("receipt bucket is required")
	}
	renderer, err := render.New()
	if err != nil {
		return nil, err
	}
	return &ReceiptArchive{
		renderer: renderer,
		s3:       s3Client,
		bucket:   bucket,
		now:      time.Now,
	}, nil
}

func receiptKey(id uuid.UUID) string {
	return "receipts/" + id.String() + ".txt"
}

// Archive renders the receipt for a finished session and uploads it,
// returning the receipt identifier.
func (a *ReceiptArchive) Archive(ctx context.Context, machineID string, state channel.MachineState) (string, error) {
	text, err := a.renderer.Render("receipt.tmpl", map[string]any{
		"MachineID": machineID,
		"Timestamp": a.now().UTC().Format(time.RFC3339),
		"Items":     state.LoanItems,
		"Fines":     state.FineItems,
	})
	if err != nil {
		return "", err
	}

	id := uuid.New()
	digest := sha256.Sum256([]byte(text))

	reader := strings.NewReader(text)
	if err := a.s3.PutObject(ctx, a.bucket, receiptKey(id), reader, int64(len(text)), hex.EncodeToString(digest[:])); err != nil {
		return "", err
	}
	return id.String(), nil
}

// PresignURL returns a short-lived download URL for an archived
// receipt.
func (a *ReceiptArchive) PresignURL(ctx context.Context, id string, ttl time.Duration) (string, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid receipt id: %w", err)
	}
	return a.s3.PresignGet(ctx, a.bucket, receiptKey(rid), ttl)
}
