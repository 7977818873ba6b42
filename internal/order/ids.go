package order

import (
	"context"
	"fmt"
	"time"
)

// IDGenerator mints order identifiers from a durable per-year counter, so ids
// are collision-free under concurrent checkouts and survive restarts. The
// format is ORD{2-digit-year}{6-digit sequence}, e.g. ORD26000042.
type IDGenerator struct {
	repo Repository
	now  func() time.Time
}

func NewIDGenerator(repo Repository) *IDGenerator {
	return &IDGenerator{repo: repo, now: time.Now}
}

func (g *IDGenerator) Next(ctx context.Context) (string, error) {
	now := g.now().UTC()
	name := fmt.Sprintf("orders-%04d", now.Year())

	seq, err := g.repo.NextSequence(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to mint order id: %w", err)
	}
	return fmt.Sprintf("ORD%02d%06d", now.Year()%100, seq), nil
}
