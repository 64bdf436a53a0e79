package execution

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/stockdesk/internal/model"
)

func noSleep(slept *time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		if slept != nil {
			*slept += d
		}
		return ctx.Err()
	}
}

func TestSimulated_Fills(t *testing.T) {
	var slept time.Duration
	s := NewSimulated(WithRandom(func() float64 { return 0.5 }), WithSleep(noSleep(&slept)))

	order, err := s.Execute(context.Background(), testOrder, 152.5)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if slept != DefaultLatency {
		t.Errorf("slept = %v, want %v", slept, DefaultLatency)
	}
	if !strings.HasPrefix(order.ID, "ORD-") {
		t.Errorf("ID = %q, want ORD- prefix", order.ID)
	}
	if order.Status != model.StatusFilled || order.Price != 152.5 || order.Quantity != 10 {
		t.Errorf("order = %+v", order)
	}
}

func TestSimulated_FailureRate(t *testing.T) {
	tests := []struct {
		name    string
		rate    float64
		roll    float64
		wantErr bool
	}{
		{"below rate rejects", 0.05, 0.01, true},
		{"at rate fills", 0.05, 0.05, false},
		{"zero rate never rejects", 0, 0, false},
		{"rate clamped to one", 2, 0.99, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSimulated(
				WithFailureRate(tt.rate),
				WithRandom(func() float64 { return tt.roll }),
				WithSleep(noSleep(nil)),
			)
			_, err := s.Execute(context.Background(), testOrder, 150)
			if tt.wantErr != errors.Is(err, ErrRejected) {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSimulated_ContextCancelled(t *testing.T) {
	s := NewSimulated(WithLatency(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Execute(ctx, testOrder, 150); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
