package utils

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type rqIDKey struct{}

func GetRequestIDFromCtx(ctx context.Context) string {
	rqID, ok := ctx.Value(rqIDKey{}).(string)
	if !ok {
		return ""
	}
	return rqID
}

func CreateCtxWithRqID(r *http.Request) context.Context {
	if rqID := r.Header.Get("X-Request-Id"); rqID != "" {
		return context.WithValue(r.Context(), rqIDKey{}, rqID)
	}
	return context.WithValue(r.Context(), rqIDKey{}, uuid.NewString())
}
