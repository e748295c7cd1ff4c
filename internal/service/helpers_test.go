package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fundlio/be-governance/internal/config"
	"github.com/fundlio/be-governance/internal/logger"
	"github.com/fundlio/be-governance/internal/repository/memory"
)

// fakeSettlement records transfer calls and can be told to fail.
type fakeSettlement struct {
	transferIns  int
	transferOuts int
	disbursed    []int64
	failNext     bool
	reference    string
}

func (f *fakeSettlement) TransferIn(ctx context.Context, participant string, amount int64) (string, error) {
	if f.failNext {
		f.failNext = false
		return "", fmt.Errorf("settlement unavailable")
	}
	f.transferIns++
	return f.reference, nil
}

func (f *fakeSettlement) TransferOut(ctx context.Context, participant string, amount int64) (string, error) {
	if f.failNext {
		f.failNext = false
		return "", fmt.Errorf("settlement unavailable")
	}
	f.transferOuts++
	return f.reference, nil
}

func (f *fakeSettlement) Disburse(ctx context.Context, recipient string, amount int64, reference string) (string, error) {
	if f.failNext {
		f.failNext = false
		return "", fmt.Errorf("settlement unavailable")
	}
	f.disbursed = append(f.disbursed, amount)
	return f.reference, nil
}

// fakeIdentity answers role checks from a fixed table.
type fakeIdentity struct {
	roles map[string][]string
}

func (f *fakeIdentity) HasRole(ctx context.Context, userID, role string) (bool, error) {
	for _, r := range f.roles[userID] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

// fakeNotifier records published events.
type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) PublishGovernanceEvent(ctx context.Context, eventType, resourceType, resourceID, actorID string, payload map[string]interface{}) {
	f.events = append(f.events, eventType)
}

func testGovernanceConfig() config.GovernanceConfig {
	return config.GovernanceConfig{
		MinProposalBond:       1000,
		VotingPeriod:          168 * time.Hour,
		QuorumPercent:         10,
		MilestoneVotingPeriod: 72 * time.Hour,
	}
}

func newTestStakeService(settlement *fakeSettlement) *StakeService {
	return NewStakeService(memory.NewStakeStore(), settlement, memory.NewAuditStore(), logger.Nop())
}

// frozenClock returns a now func pinned to the given instant, plus a setter
// to move it.
func frozenClock(at time.Time) (func() time.Time, func(time.Time)) {
	current := at
	return func() time.Time { return current }, func(t time.Time) { current = t }
}
