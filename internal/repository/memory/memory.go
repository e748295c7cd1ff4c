// Package memory provides in-memory implementations of the repository store
// interfaces. They enforce the same optimistic-version semantics as the
// Postgres repositories and back the service tests and local development runs.
package memory

import (
	"time"

	"github.com/fundlio/be-governance/internal/repository"
)

func cloneStake(s *repository.Stake) *repository.Stake {
	out := *s
	out.Locked = make(map[string]int64, len(s.Locked))
	for k, v := range s.Locked {
		out.Locked[k] = v
	}
	return &out
}

func cloneVote(v *repository.Vote) *repository.Vote {
	out := *v
	return &out
}

func cloneProposal(p *repository.Proposal) *repository.Proposal {
	out := *p
	out.Votes = make([]*repository.Vote, 0, len(p.Votes))
	for _, v := range p.Votes {
		out.Votes = append(out.Votes, cloneVote(v))
	}
	return &out
}

func cloneMilestone(m *repository.Milestone) *repository.Milestone {
	out := *m
	out.Voters = make(map[string]bool, len(m.Voters))
	for k, v := range m.Voters {
		out.Voters[k] = v
	}
	out.VotingDeadline = cloneTimePtr(m.VotingDeadline)
	return &out
}

func cloneRelease(rel *repository.Release) *repository.Release {
	out := *rel
	out.CompletedAt = cloneTimePtr(rel.CompletedAt)
	out.PaymentReference = cloneStringPtr(rel.PaymentReference)
	return &out
}

func cloneTranche(t *repository.Tranche) *repository.Tranche {
	out := *t
	out.ApprovedBy = cloneStringPtr(t.ApprovedBy)
	out.ApprovedAt = cloneTimePtr(t.ApprovedAt)
	out.EvidenceURL = cloneStringPtr(t.EvidenceURL)
	out.Releases = make([]*repository.Release, 0, len(t.Releases))
	for _, rel := range t.Releases {
		out.Releases = append(out.Releases, cloneRelease(rel))
	}
	return &out
}

func cloneAuditEntry(e *repository.AuditEntry) *repository.AuditEntry {
	out := *e
	out.StatusBefore = cloneStringPtr(e.StatusBefore)
	out.StatusAfter = cloneStringPtr(e.StatusAfter)
	if e.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
