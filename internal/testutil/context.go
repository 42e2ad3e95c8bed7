package testutil

import (
	"context"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/google/uuid"
)

func SetupContext() context.Context {
	ctx := context.Background()
	ctx = types.WithRequestID(ctx, uuid.New().String())
	return ctx
}
