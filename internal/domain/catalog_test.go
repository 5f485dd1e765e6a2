package domain_test

import (
	"errors"
	"math"
	"testing"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func TestApplyStockDelta(t *testing.T) {
	tests := []struct {
		name    string
		stock   int32
		delta   int32
		want    int32
		wantErr error
	}{
		{name: "restock", stock: 3, delta: 2, want: 5},
		{name: "sell out", stock: 3, delta: -3, want: 0},
		{name: "below zero", stock: 3, delta: -4, wantErr: domain.ErrInsufficientStock},
		{name: "up to max", stock: math.MaxInt32 - 1, delta: 1, want: math.MaxInt32},
		{name: "past max", stock: math.MaxInt32, delta: 1, wantErr: domain.ErrBookStockTooLarge},
		{name: "huge delta", stock: 10, delta: math.MaxInt32, wantErr: domain.ErrBookStockTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := domain.ApplyStockDelta(tt.stock, tt.delta)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("stock = %d, want %d", got, tt.want)
			}
		})
	}
}
