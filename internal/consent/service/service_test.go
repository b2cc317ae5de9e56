package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"agentauth/internal/audit"
	"agentauth/internal/consent/models"
	"agentauth/internal/consent/service/mocks"
	"agentauth/internal/events"
	dErrors "agentauth/pkg/domain-errors"
	"agentauth/pkg/platform/sentinel"
	"agentauth/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *mocks.MockStore
	cache     *mocks.MockCache
	tokens    *mocks.MockTokenIssuer
	auditor   *mocks.MockAuditor
	publisher *events.Recorder
	service   *Service
	ctx       context.Context
	now       time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.cache = mocks.NewMockCache(s.ctrl)
	s.tokens = mocks.NewMockTokenIssuer(s.ctrl)
	s.auditor = mocks.NewMockAuditor(s.ctrl)
	s.publisher = events.NewRecorder()

	var err error
	s.service, err = New(s.store, s.cache, s.tokens, s.auditor, WithPublisher(s.publisher))
	s.Require().NoError(err)

	s.now = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithCallerID(requestcontext.WithTime(context.Background(), s.now), "key_dev_1")
}

func (s *ServiceSuite) revoked() *models.Consent {
	at := s.now
	return &models.Consent{ID: "cns_1", UserID: "usr_1", DeveloperID: "dev_1", RevokedAt: &at}
}

func (s *ServiceSuite) TestNewRequiresDependencies() {
	_, err := New(nil, s.cache, s.tokens, s.auditor)
	s.Error(err)
	_, err = New(s.store, nil, s.tokens, s.auditor)
	s.Error(err)
	_, err = New(s.store, s.cache, nil, s.auditor)
	s.Error(err)
	_, err = New(s.store, s.cache, s.tokens, nil)
	s.Error(err)
}

func (s *ServiceSuite) TestRevoke() {
	gomock.InOrder(
		s.store.EXPECT().Revoke(gomock.Any(), "cns_1", s.now).Return(s.revoked(), nil),
		s.cache.EXPECT().Invalidate(gomock.Any(), "cns_1").Return(nil),
		s.auditor.EXPECT().Append(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e audit.Event) (*audit.Entry, error) {
				s.Equal(audit.ConsentRevoked, e.Type)
				s.Equal("dev_1", e.TenantID)
				s.Equal("key_dev_1", e.Actor.ID)
				s.Equal("cns_1", e.Resource.ID)
				return &audit.Entry{}, nil
			}),
	)

	consent, err := s.service.Revoke(s.ctx, "cns_1")
	s.Require().NoError(err)
	s.NotNil(consent.RevokedAt)

	published := s.publisher.OfType(events.ConsentRevoked)
	s.Require().Len(published, 1)
	s.Equal("cns_1", published[0].Subject)
	s.Equal("dev_1", published[0].TenantID)
}

func (s *ServiceSuite) TestRevokeErrors() {
	s.Run("empty id", func() {
		_, err := s.service.Revoke(s.ctx, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown consent", func() {
		s.store.EXPECT().Revoke(gomock.Any(), "missing", gomock.Any()).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Revoke(s.ctx, "missing")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("store failure", func() {
		s.store.EXPECT().Revoke(gomock.Any(), "cns_1", gomock.Any()).Return(nil, errors.New("conn reset"))
		_, err := s.service.Revoke(s.ctx, "cns_1")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("cache invalidation failure is surfaced", func() {
		s.store.EXPECT().Revoke(gomock.Any(), "cns_1", gomock.Any()).Return(s.revoked(), nil)
		s.cache.EXPECT().Invalidate(gomock.Any(), "cns_1").Return(errors.New("redis down"))
		_, err := s.service.Revoke(s.ctx, "cns_1")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func (s *ServiceSuite) TestAuditFailureDoesNotUndoRevoke() {
	s.store.EXPECT().Revoke(gomock.Any(), "cns_1", gomock.Any()).Return(s.revoked(), nil)
	s.cache.EXPECT().Invalidate(gomock.Any(), "cns_1").Return(nil)
	s.auditor.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil, errors.New("ledger down"))

	_, err := s.service.Revoke(s.ctx, "cns_1")
	s.NoError(err)
	s.Len(s.publisher.Events(), 1)
}

func (s *ServiceSuite) live() *models.Consent {
	return &models.Consent{
		ID:          "cns_1",
		UserID:      "usr_1",
		DeveloperID: "dev_1",
		Constraints: models.Constraints{MaxAmount: 10000, Currency: "USD"},
		ExpiresAt:   s.now.Add(time.Hour),
		IsActive:    true,
	}
}

func (s *ServiceSuite) TestGet() {
	s.Run("found", func() {
		s.cache.EXPECT().Get(gomock.Any(), "cns_1").Return(s.live(), nil)
		c, err := s.service.Get(s.ctx, "cns_1")
		s.Require().NoError(err)
		s.Equal("usr_1", c.UserID)
	})

	s.Run("unknown consent", func() {
		s.cache.EXPECT().Get(gomock.Any(), "missing").Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Get(s.ctx, "missing")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("status unknown", func() {
		s.cache.EXPECT().Get(gomock.Any(), "cns_1").Return(nil, sentinel.ErrUnavailable)
		_, err := s.service.Get(s.ctx, "cns_1")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func (s *ServiceSuite) TestIssueToken() {
	consent := s.live()
	expires := s.now.Add(15 * time.Minute)
	gomock.InOrder(
		s.cache.EXPECT().Get(gomock.Any(), "cns_1").Return(consent, nil),
		s.tokens.EXPECT().Issue(gomock.Any(), consent).Return("tok", expires, nil),
		s.auditor.EXPECT().Append(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e audit.Event) (*audit.Entry, error) {
				s.Equal(audit.ConsentTokenIssued, e.Type)
				s.Equal("dev_1", e.TenantID)
				s.Equal("cns_1", e.Resource.ID)
				return &audit.Entry{}, nil
			}),
	)

	grant, err := s.service.IssueToken(s.ctx, "cns_1")
	s.Require().NoError(err)
	s.Equal("cns_1", grant.ConsentID)
	s.Equal("tok", grant.DelegationToken)
	s.Equal(expires, grant.ExpiresAt)
}

func (s *ServiceSuite) TestIssueTokenRefusesDeadConsents() {
	cases := []struct {
		name   string
		mutate func(c *models.Consent)
		reason string
	}{
		{"revoked", func(c *models.Consent) { c.Revoke(s.now.Add(-time.Minute)) }, models.LivenessRevoked},
		{"inactive", func(c *models.Consent) { c.IsActive = false }, models.LivenessInactive},
		{"expired", func(c *models.Consent) { c.ExpiresAt = s.now.Add(-time.Second) }, models.LivenessExpired},
		{"single use consumed", func(c *models.Consent) {
			used := s.now.Add(-time.Minute)
			c.SingleUse = true
			c.UsedAt = &used
		}, "consent_used"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			consent := s.live()
			tc.mutate(consent)
			s.cache.EXPECT().Get(gomock.Any(), "cns_1").Return(consent, nil)

			_, err := s.service.IssueToken(s.ctx, "cns_1")
			s.True(dErrors.HasCode(err, dErrors.CodeConflict))
			s.Equal(tc.reason, dErrors.MessageOf(err))
		})
	}
}

func (s *ServiceSuite) TestIssueTokenSigningFailure() {
	s.cache.EXPECT().Get(gomock.Any(), "cns_1").Return(s.live(), nil)
	s.tokens.EXPECT().Issue(gomock.Any(), gomock.Any()).Return("", time.Time{}, errors.New("hsm offline"))

	_, err := s.service.IssueToken(s.ctx, "cns_1")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
