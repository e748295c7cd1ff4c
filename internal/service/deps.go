package service

import "context"

// Roles recognized by the authorization collaborator.
const (
	// RolePlatformOperator may create milestones and complete them on a
	// proposer's behalf.
	RolePlatformOperator = "PLATFORM_OPERATOR"
	// RoleFundingApprover may approve or reject tranche funding.
	RoleFundingApprover = "FUNDING_APPROVER"
)

// SettlementClient is the value-transfer collaborator. The services record
// amounts first and only then request settlement; a settlement failure never
// rolls back ledger state.
type SettlementClient interface {
	// TransferIn settles an inbound stake deposit. Returns a payment reference.
	TransferIn(ctx context.Context, participant string, amount int64) (string, error)
	// TransferOut settles an outbound unstake withdrawal.
	TransferOut(ctx context.Context, participant string, amount int64) (string, error)
	// Disburse pays out a completed fund release to the recipient.
	Disburse(ctx context.Context, recipient string, amount int64, reference string) (string, error)
}

// IdentityClient supplies role claims for callers.
type IdentityClient interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// Notifier publishes fire-and-forget governance events. Implementations must
// swallow their own errors; a nil Notifier disables publishing.
type Notifier interface {
	PublishGovernanceEvent(ctx context.Context, eventType, resourceType, resourceID, actorID string, payload map[string]interface{})
}

func notify(ctx context.Context, n Notifier, eventType, resourceType, resourceID, actorID string, payload map[string]interface{}) {
	if n == nil {
		return
	}
	n.PublishGovernanceEvent(ctx, eventType, resourceType, resourceID, actorID, payload)
}
