package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/finfacts_backend/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyReviewer      = appctx.ContextKeyReviewer
	ContextKeyForceResolve  = appctx.ContextKeyForceResolve
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetReviewerFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyReviewer)
}

func SetReviewerInContext(ctx context.Context, reviewer string) context.Context {
	return appctx.Set(ctx, ContextKeyReviewer, reviewer)
}

func GetForceResolveFromContext(ctx context.Context) bool {
	v, ok := appctx.GetBool(ctx, ContextKeyForceResolve)
	return ok && v
}

func SetForceResolveInContext(ctx context.Context, force bool) context.Context {
	return appctx.Set(ctx, ContextKeyForceResolve, force)
}
