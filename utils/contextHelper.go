package utils

import (
	"context"

	"github.com/akarakonline-arch/hggzk-sub012/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyActor         = appctx.ContextKeyActor
	ContextKeyPrivileged    = appctx.ContextKeyPrivileged
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetActorFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyActor)
}

func SetActorInContext(ctx context.Context, actor string) context.Context {
	return appctx.Set(ctx, ContextKeyActor, actor)
}

func IsPrivilegedContext(ctx context.Context) bool {
	v, ok := appctx.GetBool(ctx, ContextKeyPrivileged)
	return ok && v
}

func SetPrivilegedInContext(ctx context.Context, privileged bool) context.Context {
	return appctx.Set(ctx, ContextKeyPrivileged, privileged)
}
