package grpc

import (
	"context"
	"errors"

	authpb "syncup-service/pb/auth"
)

// AuthClient wraps the auth-service gRPC client.
type AuthClient struct {
	client authpb.AuthServiceClient
}

// NewAuthClient constructs the wrapper.
func NewAuthClient(client authpb.AuthServiceClient) *AuthClient {
	return &AuthClient{client: client}
}

// ValidateToken verifies the token and returns the authenticated user id.
func (a *AuthClient) ValidateToken(ctx context.Context, token string) (int64, error) {
	resp, err := a.client.ValidateToken(ctx, &authpb.ValidateTokenRequest{Token: token})
	if err != nil {
		return 0, err
	}
	if !resp.GetValid() || resp.GetUserId() == 0 {
		return 0, errors.New("invalid token")
	}
	return resp.GetUserId(), nil
}
