package merco

import (
	"context"

	"github.com/SametHaymana/merco-api/internal/audit"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType audit.Type,
	tenantID string,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: e.now(),
		Type:      eventType,
		TenantID:  tenantID,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   err == nil,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = ErrorCode(err)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, tenantID string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, audit.TypeRateLimited, tenantID, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}
