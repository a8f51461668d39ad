package merco

import "context"

// SweepExpiredSessions revokes sessions past their expiry. It is run by the
// worker's periodic task, never on a request path.
func (e *Engine) SweepExpiredSessions(ctx context.Context) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.sessions.SweepExpired(ctx)
	if err != nil {
		return 0, e.internal(ctx, "sweep.sessions", err)
	}
	e.metrics.Add(MetricSessionsSwept, uint64(n))
	return n, nil
}

// SweepExpiredTokens deletes single-use tokens past their expiry.
func (e *Engine) SweepExpiredTokens(ctx context.Context) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.tokens.DeleteExpiredTokens(ctx, e.now())
	if err != nil {
		return 0, e.internal(ctx, "sweep.tokens", err)
	}
	e.metrics.Add(MetricTokensSwept, uint64(n))
	return n, nil
}

// Sweep runs both cleanups and logs the totals.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	n, err := e.SweepExpiredSessions(ctx)
	if err != nil {
		return rep, err
	}
	rep.Sessions = n
	if n, err = e.SweepExpiredTokens(ctx); err != nil {
		return rep, err
	}
	rep.Tokens = n
	e.logger.InfoContext(ctx, "sweep finished", "sessions", rep.Sessions, "tokens", rep.Tokens)
	return rep, nil
}
