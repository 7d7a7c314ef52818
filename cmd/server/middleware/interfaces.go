package middleware

import (
	"context"

	"github.com/mediavault/mediavault/pkg/types"
)

// AuthValidator defines the contract for authentication services
type AuthValidator interface {
	ValidateToken(ctx context.Context, token string) (*types.User, error)
	ValidateAPIKey(ctx context.Context, apiKey string) (*types.User, *types.APIKey, error)
}
