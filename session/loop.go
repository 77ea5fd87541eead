package session

import (
	"context"

	"golang.org/x/time/rate"
)

// Loop runs iterations of the session, starting them at most once per
// session.iteration_delay. iterations <= 0 runs until ctx is done. The first
// failing iteration ends the loop with its error.
func (s *Session) Loop(ctx context.Context, iterations int) error {
	limit := rate.Inf
	if delay := s.cfg.Session.IterationDelay; delay > 0 {
		limit = rate.Every(delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i := 1; iterations <= 0 || i <= iterations; i++ {
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		logger := s.log.WithField("iteration", i)
		logger.Info("---------STARTING DEMO---------")
		if err := s.Run(ctx); err != nil {
			logger.WithError(err).Error("Demo iteration failed")
			return err
		}
		logger.Info("Demo completed successfully")
	}
	return nil
}
