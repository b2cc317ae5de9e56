package memory

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"agentauth/internal/audit"
	"agentauth/pkg/requestcontext"
)

// In-memory audit store and ledger behaviour tests.
//
// Justification: chain linking, per-tenant ordering under concurrency and
// tamper detection need direct access to stored entries, which only this
// package has.
type StoreSuite struct {
	suite.Suite
	store  *Store
	ledger *audit.Ledger
	ctx    context.Context
	now    time.Time
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = New()
	_, key, err := ed25519.GenerateKey(nil)
	s.Require().NoError(err)
	s.ledger, err = audit.New(s.store, key)
	s.Require().NoError(err)
	s.now = time.Date(2026, 5, 1, 10, 0, 0, 123456789, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *StoreSuite) appendN(tenant string, n int) []*audit.Entry {
	out := make([]*audit.Entry, 0, n)
	for i := range n {
		e, err := s.ledger.Append(s.ctx, audit.Event{
			Type:     audit.AuthorizationApproved,
			TenantID: tenant,
			Actor:    audit.Actor{Type: "agent", ID: "caller_1"},
			Resource: audit.Resource{Type: "consent", ID: fmt.Sprintf("cns_%d", i)},
			Action:   "authorize_transaction",
			Outcome:  audit.OutcomeSuccess,
			Details:  map[string]any{"amount": 9.99, "merchant_id": "github"},
		})
		s.Require().NoError(err)
		out = append(out, e)
	}
	return out
}

func (s *StoreSuite) TestChainLinksEntries() {
	entries := s.appendN("dev_1", 3)

	s.Equal(audit.GenesisHash, entries[0].PreviousHash)
	s.Equal(int64(1), entries[0].Sequence)
	s.Equal(entries[0].RecordHash, entries[1].PreviousHash)
	s.Equal(entries[1].RecordHash, entries[2].PreviousHash)
	s.Equal(int64(3), entries[2].Sequence)
	s.Equal(s.now.Truncate(time.Microsecond), entries[0].Timestamp)
	s.Contains(entries[0].EventID, "aud_")
	s.Equal(audit.SeverityInfo, entries[0].Severity)
	s.Equal(audit.DefaultRetentionDays, entries[0].RetentionDays)
}

func (s *StoreSuite) TestTenantsHaveIndependentChains() {
	s.appendN("dev_1", 2)
	other := s.appendN("dev_2", 1)
	s.Equal(audit.GenesisHash, other[0].PreviousHash)
	s.Equal(int64(1), other[0].Sequence)
}

func (s *StoreSuite) TestTenantlessEventsGoToSystemChain() {
	e, err := s.ledger.Append(s.ctx, audit.Event{Type: audit.AuthorizationDenied, Outcome: audit.OutcomeDenied})
	s.Require().NoError(err)
	s.Equal(audit.SystemTenant, e.TenantID)
	s.Equal(audit.SeverityWarning, e.Severity)
	s.JSONEq(`{}`, string(e.Details))
}

func (s *StoreSuite) TestUntamperedChainVerifies() {
	s.appendN("dev_1", 5)
	report, err := s.ledger.VerifyIntegrity(s.ctx, "dev_1")
	s.Require().NoError(err)
	s.True(report.Valid)
	s.Equal(5, report.EntriesChecked)
	s.Nil(report.BrokenAt)

	empty, err := s.ledger.VerifyIntegrity(s.ctx, "nobody")
	s.Require().NoError(err)
	s.True(empty.Valid)
	s.Zero(empty.EntriesChecked)
}

func (s *StoreSuite) TestTamperDetection() {
	entries := s.appendN("dev_1", 4)
	target := entries[2]

	s.Run("details edited", func() {
		s.tamper("dev_1", 2, func(e *audit.Entry) {
			e.Details = json.RawMessage(`{"amount":1,"merchant_id":"github"}`)
		})
		report, err := s.ledger.VerifyIntegrity(s.ctx, "dev_1")
		s.Require().NoError(err)
		s.False(report.Valid)
		s.Equal(target.EventID, report.BrokenAt.EventID)
		s.Equal(audit.BreakRecordHash, report.BrokenAt.Reason)
		s.Equal(3, report.EntriesChecked)
	})

	s.Run("details edited and hash recomputed", func() {
		s.tamper("dev_1", 2, func(e *audit.Entry) {
			e.RecordHash = e.ComputeHash()
		})
		report, err := s.ledger.VerifyIntegrity(s.ctx, "dev_1")
		s.Require().NoError(err)
		s.False(report.Valid)
		s.Equal(target.Sequence, report.BrokenAt.Sequence)
		s.Equal(audit.BreakSignature, report.BrokenAt.Reason)
	})

	s.Run("entry removed", func() {
		s.SetupTest()
		s.appendN("dev_1", 3)
		s.store.mu.Lock()
		chain := s.store.chains["dev_1"]
		s.store.chains["dev_1"] = append(chain[:1:1], chain[2])
		s.store.mu.Unlock()

		report, err := s.ledger.VerifyIntegrity(s.ctx, "dev_1")
		s.Require().NoError(err)
		s.False(report.Valid)
		s.Equal(int64(3), report.BrokenAt.Sequence)
		s.Equal(audit.BreakPreviousHash, report.BrokenAt.Reason)
	})
}

func (s *StoreSuite) tamper(tenant string, idx int, mutate func(*audit.Entry)) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	mutate(&s.store.chains[tenant][idx])
}

func (s *StoreSuite) TestConcurrentAppendsStayOrdered() {
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ledger.Append(s.ctx, audit.Event{Type: audit.AuthorizationApproved, TenantID: "dev_1"})
			s.NoError(err)
		}()
	}
	wg.Wait()

	entries, err := s.ledger.Query(s.ctx, "dev_1", audit.Filter{})
	s.Require().NoError(err)
	s.Len(entries, 50)
	for i, e := range entries {
		s.Equal(int64(i+1), e.Sequence)
	}
	report, err := s.ledger.VerifyIntegrity(s.ctx, "dev_1")
	s.Require().NoError(err)
	s.True(report.Valid)
}

func (s *StoreSuite) TestQueryFilters() {
	s.appendN("dev_1", 3)
	later := requestcontext.WithTime(context.Background(), s.now.Add(time.Hour))
	_, err := s.ledger.Append(later, audit.Event{
		Type:     audit.ConsentRevoked,
		TenantID: "dev_1",
		Actor:    audit.Actor{Type: "user", ID: "usr_9"},
		Resource: audit.Resource{Type: "consent", ID: "cns_1"},
	})
	s.Require().NoError(err)

	s.Run("by event type", func() {
		got, err := s.ledger.Query(s.ctx, "dev_1", audit.Filter{EventTypes: []audit.EventType{audit.ConsentRevoked}})
		s.Require().NoError(err)
		s.Len(got, 1)
	})
	s.Run("by resource", func() {
		got, err := s.ledger.Query(s.ctx, "dev_1", audit.Filter{ResourceID: "cns_1"})
		s.Require().NoError(err)
		s.Len(got, 2)
	})
	s.Run("by actor", func() {
		got, err := s.ledger.Query(s.ctx, "dev_1", audit.Filter{ActorID: "usr_9"})
		s.Require().NoError(err)
		s.Len(got, 1)
	})
	s.Run("by time window", func() {
		got, err := s.ledger.Query(s.ctx, "dev_1", audit.Filter{Start: s.now.Add(30 * time.Minute)})
		s.Require().NoError(err)
		s.Len(got, 1)
		s.Equal(audit.ConsentRevoked, got[0].Type)
	})
	s.Run("limit", func() {
		got, err := s.ledger.Query(s.ctx, "dev_1", audit.Filter{Limit: 2})
		s.Require().NoError(err)
		s.Len(got, 2)
		s.Equal(int64(1), got[0].Sequence)
	})
}

func (s *StoreSuite) TestExport() {
	s.appendN("dev_1", 2)
	actor := audit.Actor{Type: "developer", ID: "dev_1"}

	export, err := s.ledger.Export(s.ctx, "dev_1", audit.RegulationFINRA, s.now.Add(-time.Hour), s.now.Add(time.Hour), actor)
	s.Require().NoError(err)
	s.Equal(2, export.TotalEntries)
	s.Equal(2190, export.RetentionDays)
	s.True(export.IntegrityCheck.Valid)

	exported, err := s.ledger.Query(s.ctx, "dev_1", audit.Filter{EventTypes: []audit.EventType{audit.AuditExported}})
	s.Require().NoError(err)
	s.Len(exported, 1, "export is itself audited")

	_, err = s.ledger.Export(s.ctx, "dev_1", audit.RegulationSOX, s.now, s.now.Add(-time.Hour), actor)
	s.Error(err)
}

func (s *StoreSuite) TestRecordIsAppendedByWorker() {
	for range 3 {
		s.ledger.Record(s.ctx, audit.Event{Type: audit.AuthorizationDenied, TenantID: "dev_1"})
	}
	s.Equal(3, s.ledger.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ledger.Run(ctx) }()

	s.Eventually(func() bool {
		entries, _ := s.store.List(context.Background(), "dev_1", audit.Filter{})
		return len(entries) == 3
	}, time.Second, 5*time.Millisecond)

	s.ledger.Record(s.ctx, audit.Event{Type: audit.AuthorizationDenied, TenantID: "dev_1"})
	cancel()
	s.NoError(<-done)

	entries, err := s.store.List(context.Background(), "dev_1", audit.Filter{})
	s.Require().NoError(err)
	s.Len(entries, 4, "shutdown drains the queue")
	s.Equal(s.now.Truncate(time.Microsecond), entries[3].Timestamp, "recorded time is the call time")
}
