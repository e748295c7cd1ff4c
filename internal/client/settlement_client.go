package client

import (
	"context"
	"fmt"
)

// SettlementClient implements service.SettlementClient against the platform
// settlement service over HTTP.
type SettlementClient struct {
	client *httpJSON
}

// NewSettlementClient creates a settlement service client.
func NewSettlementClient(baseURL string) *SettlementClient {
	return &SettlementClient{client: newHTTPJSON(baseURL)}
}

type transferRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

type transferResponse struct {
	PaymentReference string `json:"payment_reference"`
}

type disburseRequest struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

// TransferIn moves tokens from a participant's wallet into governance custody.
func (c *SettlementClient) TransferIn(ctx context.Context, participant string, amount int64) (string, error) {
	req := &transferRequest{Account: participant, Amount: amount}
	var resp transferResponse
	if err := c.client.post(ctx, "/api/v1/transfers/in", req, &resp); err != nil {
		return "", fmt.Errorf("failed to transfer stake in: %w", err)
	}
	return resp.PaymentReference, nil
}

// TransferOut returns tokens from governance custody to a participant's wallet.
func (c *SettlementClient) TransferOut(ctx context.Context, participant string, amount int64) (string, error) {
	req := &transferRequest{Account: participant, Amount: amount}
	var resp transferResponse
	if err := c.client.post(ctx, "/api/v1/transfers/out", req, &resp); err != nil {
		return "", fmt.Errorf("failed to transfer stake out: %w", err)
	}
	return resp.PaymentReference, nil
}

// Disburse pays out a fund release and returns the settlement reference.
func (c *SettlementClient) Disburse(ctx context.Context, recipient string, amount int64, reference string) (string, error) {
	req := &disburseRequest{Recipient: recipient, Amount: amount, Reference: reference}
	var resp transferResponse
	if err := c.client.post(ctx, "/api/v1/disbursements", req, &resp); err != nil {
		return "", fmt.Errorf("failed to disburse release: %w", err)
	}
	return resp.PaymentReference, nil
}

// NoopSettlementClient satisfies service.SettlementClient without side
// effects. Used when no settlement service is configured.
type NoopSettlementClient struct{}

// NewNoopSettlementClient creates a settlement client that does nothing.
func NewNoopSettlementClient() *NoopSettlementClient {
	return &NoopSettlementClient{}
}

func (c *NoopSettlementClient) TransferIn(ctx context.Context, participant string, amount int64) (string, error) {
	return "", nil
}

func (c *NoopSettlementClient) TransferOut(ctx context.Context, participant string, amount int64) (string, error) {
	return "", nil
}

func (c *NoopSettlementClient) Disburse(ctx context.Context, recipient string, amount int64, reference string) (string, error) {
	return "", nil
}
