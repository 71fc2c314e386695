package memory

import (
	"context"
	"time"

	"routeledger/internal/domain/cycle"
)

var _ cycle.Fence = (*Fence)(nil)

type fenceFlag struct {
	Holder    string    `json:"holder,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

func (f fenceFlag) live(now time.Time) bool {
	return f.Holder != "" && now.Before(f.ExpiresAt)
}

// Fence keeps the settlement flag in the dataset. Write transactions are
// serialized, so a Check inside a command transaction always sees the latest Raise.
type Fence struct {
	s   *Store
	now func() time.Time
}

func (s *Store) Fence() *Fence { return &Fence{s: s, now: time.Now} }

func (f *Fence) Raise(ctx context.Context, holder string, ttl time.Duration) error {
	return f.s.write(ctx, "fence.raise", func(d *dataset) error {
		now := f.now()
		if d.Fence.live(now) && d.Fence.Holder != holder {
			return cycle.ErrFenceRaised
		}
		d.Fence = fenceFlag{Holder: holder, ExpiresAt: now.Add(ttl)}
		return nil
	})
}

func (f *Fence) Lower(ctx context.Context, holder string) error {
	return f.s.write(ctx, "fence.lower", func(d *dataset) error {
		if d.Fence.Holder == holder {
			d.Fence = fenceFlag{}
		}
		return nil
	})
}

func (f *Fence) Check(ctx context.Context) error {
	if f.s.read(ctx).Fence.live(f.now()) {
		return cycle.ErrFenceRaised
	}
	return nil
}
