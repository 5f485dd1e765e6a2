package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func TestNewIdempotencyRecord(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	record, err := domain.NewIdempotencyRecord(" k ", " h ", time.Time{}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Key != "k" || record.RequestHash != "h" {
		t.Fatalf("key and hash must be trimmed: %+v", record)
	}
	if record.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("unexpected status %s", record.Status)
	}
	if !record.TTLAt.Equal(now.Add(domain.DefaultIdempotencyTTL)) {
		t.Fatalf("unexpected ttl %s", record.TTLAt)
	}
	if record.Expired(now) || !record.Expired(record.TTLAt) {
		t.Fatal("record expires exactly at ttl")
	}

	if _, err := domain.NewIdempotencyRecord("", "h", now, now); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected key required, got %v", err)
	}
	if _, err := domain.NewIdempotencyRecord("k", " ", now, now); !errors.Is(err, domain.ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected hash required, got %v", err)
	}
}

func TestIdempotencyRecord_Conflict(t *testing.T) {
	record := domain.IdempotencyRecord{RequestHash: "a"}

	if err := record.Conflict("a"); !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("same request: %v", err)
	}
	if err := record.Conflict("b"); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("different request: %v", err)
	}
	if !domain.IsIdempotencyConflict(record.Conflict("b")) {
		t.Fatal("hash mismatch is a conflict")
	}
}
