package client

import (
	"context"
	"fmt"
)

// IdentityClient implements service.IdentityClient against the platform
// identity service over HTTP.
type IdentityClient struct {
	client *httpJSON
}

// NewIdentityClient creates an identity service client.
func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{client: newHTTPJSON(baseURL)}
}

type rolesResponse struct {
	Roles []string `json:"roles"`
}

// HasRole reports whether the user holds the given platform role.
func (c *IdentityClient) HasRole(ctx context.Context, userID, role string) (bool, error) {
	path := fmt.Sprintf("/api/v1/users/%s/roles", userID)

	var resp rolesResponse
	if err := c.client.get(ctx, path, &resp); err != nil {
		return false, fmt.Errorf("failed to get user roles: %w", err)
	}

	for _, r := range resp.Roles {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

// StaticIdentityClient satisfies service.IdentityClient from a fixed
// user→roles table. Used in local development and tests.
type StaticIdentityClient struct {
	roles map[string][]string
}

// NewStaticIdentityClient creates an identity client backed by a fixed table.
// A nil table grants every role to every user.
func NewStaticIdentityClient(roles map[string][]string) *StaticIdentityClient {
	return &StaticIdentityClient{roles: roles}
}

func (c *StaticIdentityClient) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if c.roles == nil {
		return true, nil
	}
	for _, r := range c.roles[userID] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}
