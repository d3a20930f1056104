package repository

import (
	"context"

	"invest-research-backend/internal/domain/model"
)

type UserRepository interface {
	// FindByID returns domain.ErrNotFound when no account row exists yet.
	// Callers treat both the error and the not-found case as "unverified".
	FindByID(ctx context.Context, qx Tx, id string) (*model.User, error)
}
