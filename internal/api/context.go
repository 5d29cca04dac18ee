package api

import (
	"context"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/evaluation"
)

// UserFromContext returns the user id attached by IdentityMiddleware
func UserFromContext(ctx context.Context) string {
	return evaluation.UserFromContext(ctx)
}
