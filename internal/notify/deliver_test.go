package notify

import (
	"context"
	"sync"
	"testing"

	"golang.org/x/time/rate"

	kit "outagebot/internal/transport"
	logx "outagebot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return len(f.sent), nil
}

func TestSetRateAppliesToLiveLimiter(t *testing.T) {
	t.Parallel()

	d := NewDeliverer(&fakeAdapter{}, 5, logx.Nop())
	if got := d.limiter.Limit(); got != rate.Limit(5) {
		t.Fatalf("initial limit = %v, want 5", got)
	}

	d.SetRate(50)
	if got := d.limiter.Limit(); got != rate.Limit(50) {
		t.Errorf("limit after SetRate(50) = %v", got)
	}
	if got := d.limiter.Burst(); got != 50 {
		t.Errorf("burst after SetRate(50) = %d", got)
	}

	// Zero and negatives fall back to the default, same as the constructor.
	d.SetRate(0)
	if got := d.limiter.Limit(); got != rate.Limit(defaultRatePerSec) {
		t.Errorf("limit after SetRate(0) = %v, want %d", got, defaultRatePerSec)
	}
}

func TestSendPassesThroughAdapter(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	d := NewDeliverer(ad, 100, logx.Nop())
	if err := d.Send(context.Background(), 7, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(ad.sent) != 1 || ad.sent[0] != "hello" {
		t.Errorf("sent = %v", ad.sent)
	}
}
