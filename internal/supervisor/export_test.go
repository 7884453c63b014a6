package supervisor

import (
	"context"
	"io"

	"github.com/jonesrussell/domaincrawl/internal/frontier"
	"github.com/jonesrussell/domaincrawl/internal/worker"
)

// Test seams.

func (s *Supervisor) SetRunDomainForTest(run func(ctx context.Context, batch *frontier.DomainBatch) (worker.Stats, error)) {
	s.runDomain = run
}

func (s *Supervisor) SetOutputForTest(w io.Writer) {
	s.out = w
}
