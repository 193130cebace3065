package setup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rolegate/rolegate/internal/domain"
	"github.com/rolegate/rolegate/internal/pkg/setuptoken"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSetupStore struct{ mock.Mock }

func (m *mockSetupStore) Put(ctx context.Context, p *domain.PendingSetup) error {
	return m.Called(ctx, p).Error(0)
}
func (m *mockSetupStore) Get(ctx context.Context, setupID string) (*domain.PendingSetup, error) {
	args := m.Called(ctx, setupID)
	if p, _ := args.Get(0).(*domain.PendingSetup); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSetupStore) Update(ctx context.Context, setupID string, updates map[string]interface{}) error {
	return m.Called(ctx, setupID, updates).Error(0)
}
func (m *mockSetupStore) Delete(ctx context.Context, setupID string) error {
	return m.Called(ctx, setupID).Error(0)
}

type mockConfigStore struct{ mock.Mock }

func (m *mockConfigStore) Get(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	args := m.Called(ctx, guildID)
	if g, _ := args.Get(0).(*domain.GuildConfig); g != nil {
		return g, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockConfigStore) Put(ctx context.Context, g *domain.GuildConfig) error {
	return m.Called(ctx, g).Error(0)
}

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) FetchMessageText(ctx context.Context, channelID, messageID string) (string, error) {
	args := m.Called(ctx, channelID, messageID)
	return args.String(0), args.Error(1)
}

type mockPoster struct{ mock.Mock }

func (m *mockPoster) PostMessage(ctx context.Context, channelID, text string, components interface{}) error {
	return m.Called(ctx, channelID, text, components).Error(0)
}

// --- fixtures ---

const (
	adminID   = "111111111111111111"
	guildID   = "222222222222222222"
	roleID    = "333333333333333333"
	channelID = "444444444444444444"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func setupID() string { return setuptoken.New(adminID, guildID) }

func livePending(mutate func(*domain.PendingSetup)) *domain.PendingSetup {
	p := &domain.PendingSetup{
		SetupID:     setupID(),
		GuildID:     guildID,
		AdminUserID: adminID,
		ExpiresAt:   baseTime.Add(4 * time.Minute).Unix(),
	}
	if mutate != nil {
		mutate(p)
	}
	return p
}

func newTestService(st *mockSetupStore, cs *mockConfigStore, f *mockFetcher, po *mockPoster) Service {
	return NewService(Deps{
		Setups:     st,
		Configs:    cs,
		Fetcher:    f,
		Poster:     po,
		SetupTTL:   5 * time.Minute,
		CaptureTTL: 2 * time.Minute,
		Now:        func() time.Time { return baseTime },
	})
}

// --- Begin / expiry ---

func TestBegin_PersistsPendingSetupKeyedByToken(t *testing.T) {
	st := &mockSetupStore{}
	var stored *domain.PendingSetup
	st.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*domain.PendingSetup)
	}).Return(nil)

	svc := newTestService(st, nil, nil, nil)
	got, err := svc.Begin(context.Background(), adminID, guildID)

	require.NoError(t, err)
	assert.Equal(t, setupID(), got)
	require.NotNil(t, stored)
	assert.Equal(t, guildID, stored.GuildID)
	assert.Equal(t, adminID, stored.AdminUserID)
	assert.Equal(t, baseTime.Add(5*time.Minute).Unix(), stored.ExpiresAt)
}

func TestGetLive_ExpiredByWallClock(t *testing.T) {
	// The store row is still present but past its deadline; the TTL reaper
	// is advisory and must not be trusted for correctness.
	st := &mockSetupStore{}
	st.On("Get", mock.Anything, setupID()).Return(livePending(func(p *domain.PendingSetup) {
		p.ExpiresAt = baseTime.Add(-time.Second).Unix()
	}), nil)

	svc := newTestService(st, nil, nil, nil)
	_, err := svc.Preview(context.Background(), setupID())

	assert.ErrorIs(t, err, domain.ErrSetupExpired)
}

func TestGetLive_MissingRowReportsExpired(t *testing.T) {
	st := &mockSetupStore{}
	st.On("Get", mock.Anything, setupID()).Return(nil, domain.ErrNotFound)

	svc := newTestService(st, nil, nil, nil)
	_, err := svc.Preview(context.Background(), setupID())

	assert.ErrorIs(t, err, domain.ErrSetupExpired)
}

// --- selections ---

func TestSetRole_RejectsNonSnowflake(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)
	err := svc.SetRole(context.Background(), setupID(), "not-a-role")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestSetRole_PersistsSelection(t *testing.T) {
	st := &mockSetupStore{}
	st.On("Get", mock.Anything, setupID()).Return(livePending(nil), nil)
	st.On("Update", mock.Anything, setupID(), map[string]interface{}{"role_id": roleID}).Return(nil)

	svc := newTestService(st, nil, nil, nil)
	require.NoError(t, svc.SetRole(context.Background(), setupID(), roleID))
	st.AssertExpectations(t)
}

func TestContinue_BothSelected_DomainsRequiredForNewGuild(t *testing.T) {
	st := &mockSetupStore{}
	cs := &mockConfigStore{}
	st.On("Get", mock.Anything, setupID()).Return(livePending(func(p *domain.PendingSetup) {
		p.RoleID = roleID
		p.ChannelID = channelID
	}), nil)
	cs.On("Get", mock.Anything, guildID).Return(nil, domain.ErrNotFound)
	st.On("Update", mock.Anything, setupID(), map[string]interface{}{
		"role_id":    roleID,
		"channel_id": channelID,
	}).Return(nil)

	svc := newTestService(st, cs, nil, nil)
	domainsRequired, err := svc.Continue(context.Background(), setupID())

	require.NoError(t, err)
	assert.True(t, domainsRequired)
}

func TestContinue_MissingPicksFallBackToExistingConfig(t *testing.T) {
	st := &mockSetupStore{}
	cs := &mockConfigStore{}
	st.On("Get", mock.Anything, setupID()).Return(livePending(func(p *domain.PendingSetup) {
		p.ChannelID = channelID // only the channel was re-picked
	}), nil)
	cs.On("Get", mock.Anything, guildID).Return(&domain.GuildConfig{
		GuildID:        guildID,
		RoleID:         roleID,
		ChannelID:      "555555555555555555",
		AllowedDomains: []string{"auburn.edu"},
	}, nil)
	st.On("Update", mock.Anything, setupID(), map[string]interface{}{
		"role_id":    roleID,
		"channel_id": channelID,
	}).Return(nil)

	svc := newTestService(st, cs, nil, nil)
	domainsRequired, err := svc.Continue(context.Background(), setupID())

	require.NoError(t, err)
	assert.False(t, domainsRequired, "guild already has domains")
	st.AssertExpectations(t)
}

func TestContinue_NothingSelectedAndNoConfig(t *testing.T) {
	st := &mockSetupStore{}
	cs := &mockConfigStore{}
	st.On("Get", mock.Anything, setupID()).Return(livePending(nil), nil)
	cs.On("Get", mock.Anything, guildID).Return(nil, domain.ErrNotFound)

	svc := newTestService(st, cs, nil, nil)
	_, err := svc.Continue(context.Background(), setupID())

	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

// --- domains ---

func TestParseDomains(t *testing.T) {
	assert.Equal(t, []string{"foo.edu", "bar.edu"}, ParseDomains("foo.edu, bar.edu"))
	assert.Equal(t, []string{"foo.edu"}, ParseDomains("  FOO.EDU  "))
	assert.Equal(t, []string{"a.edu", "b.edu"}, ParseDomains(",a.edu,,b.edu,"))
	assert.Nil(t, ParseDomains(""))
	assert.Nil(t, ParseDomains(" , , "))
}

func TestCollectDomains_ParsesAndStores(t *testing.T) {
	st := &mockSetupStore{}
	st.On("Get", mock.Anything, setupID()).Return(livePending(nil), nil)
	st.On("Update", mock.Anything, setupID(), map[string]interface{}{
		"allowed_domains": []string{"foo.edu", "bar.edu"},
		"custom_message":  "",
	}).Return(nil)

	svc := newTestService(st, nil, nil, nil)
	domains, err := svc.CollectDomains(context.Background(), setupID(), "foo.edu, bar.edu")

	require.NoError(t, err)
	assert.Equal(t, []string{"foo.edu", "bar.edu"}, domains)
	st.AssertExpectations(t)
}

func TestCollectDomains_EmptyKeepsExisting(t *testing.T) {
	st := &mockSetupStore{}
	cs := &mockConfigStore{}
	st.On("Get", mock.Anything, setupID()).Return(livePending(nil), nil)
	cs.On("Get", mock.Anything, guildID).Return(&domain.GuildConfig{
		GuildID:        guildID,
		AllowedDomains: []string{"auburn.edu"},
	}, nil)
	st.On("Update", mock.Anything, setupID(), map[string]interface{}{
		"allowed_domains": []string{"auburn.edu"},
		"custom_message":  "",
	}).Return(nil)

	svc := newTestService(st, cs, nil, nil)
	domains, err := svc.CollectDomains(context.Background(), setupID(), "  ")

	require.NoError(t, err)
	assert.Equal(t, []string{"auburn.edu"}, domains)
}

func TestCollectDomains_EmptyWithoutExistingRejected(t *testing.T) {
	st := &mockSetupStore{}
	cs := &mockConfigStore{}
	st.On("Get", mock.Anything, setupID()).Return(livePending(nil), nil)
	cs.On("Get", mock.Anything, guildID).Return(nil, domain.ErrNotFound)

	svc := newTestService(st, cs, nil, nil)
	_, err := svc.CollectDomains(context.Background(), setupID(), "")

	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

// --- message link ---

func TestParseMessageLink(t *testing.T) {
	valid := "https://discord.com/channels/222222222222222222/444444444444444444/555555555555555555"
	ref, err := ParseMessageLink(valid)
	require.NoError(t, err)
	assert.Equal(t, "222222222222222222", ref.GuildID)
	assert.Equal(t, "444444444444444444", ref.ChannelID)
	assert.Equal(t, "555555555555555555", ref.MessageID)

	rejected := []struct {
		name string
		link string
	}{
		{"http scheme", "http://discord.com/channels/222222222222222222/444444444444444444/555555555555555555"},
		{"wrong host", "https://evil.example.com/channels/222222222222222222/444444444444444444/555555555555555555"},
		{"lookalike host", "https://discord.com.evil.example/channels/222222222222222222/444444444444444444/555555555555555555"},
		{"wrong path root", "https://discord.com/invites/222222222222222222/444444444444444444/555555555555555555"},
		{"missing segment", "https://discord.com/channels/222222222222222222/444444444444444444"},
		{"extra segment", "https://discord.com/channels/1/2/3/4"},
		{"non-numeric ids", "https://discord.com/channels/guild/channel/message"},
		{"empty", ""},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessageLink(tt.link)
			assert.ErrorIs(t, err, domain.ErrBadRequest)
		})
	}
}

func TestCollectMessageFromLink_HappyPath(t *testing.T) {
	st := &mockSetupStore{}
	f := &mockFetcher{}
	st.On("Get", mock.Anything, setupID()).Return(livePending(nil), nil)
	f.On("FetchMessageText", mock.Anything, "444444444444444444", "555555555555555555").Return("Welcome! Verify here.", nil)
	st.On("Update", mock.Anything, setupID(), map[string]interface{}{
		"custom_message": "Welcome! Verify here.",
	}).Return(nil)

	svc := newTestService(st, nil, f, nil)
	link := "https://discord.com/channels/" + guildID + "/444444444444444444/555555555555555555"
	require.NoError(t, svc.CollectMessageFromLink(context.Background(), setupID(), link))
	st.AssertExpectations(t)
}

func TestCollectMessageFromLink_CrossGuildRefused(t *testing.T) {
	st := &mockSetupStore{}
	f := &mockFetcher{}
	st.On("Get", mock.Anything, setupID()).Return(livePending(nil), nil)

	svc := newTestService(st, nil, f, nil)
	link := "https://discord.com/channels/999999999999999999/444444444444444444/555555555555555555"
	err := svc.CollectMessageFromLink(context.Background(), setupID(), link)

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	f.AssertNotCalled(t, "FetchMessageText", mock.Anything, mock.Anything, mock.Anything)
}

func TestCollectMessageFromLink_EmptyMessageRejected(t *testing.T) {
	st := &mockSetupStore{}
	f := &mockFetcher{}
	st.On("Get", mock.Anything, setupID()).Return(livePending(nil), nil)
	f.On("FetchMessageText", mock.Anything, mock.Anything, mock.Anything).Return("   \n ", nil)

	svc := newTestService(st, nil, f, nil)
	link := "https://discord.com/channels/" + guildID + "/444444444444444444/555555555555555555"
	err := svc.CollectMessageFromLink(context.Background(), setupID(), link)

	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestSkipMessage_RequiresExistingMessage(t *testing.T) {
	st := &mockSetupStore{}
	cs := &mockConfigStore{}
	st.On("Get", mock.Anything, setupID()).Return(livePending(nil), nil)
	cs.On("Get", mock.Anything, guildID).Return(nil, domain.ErrNotFound).Once()

	svc := newTestService(st, cs, nil, nil)
	err := svc.SkipMessage(context.Background(), setupID())
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	cs.On("Get", mock.Anything, guildID).Return(&domain.GuildConfig{
		GuildID:       guildID,
		CustomMessage: "existing text",
	}, nil).Once()
	st.On("Update", mock.Anything, setupID(), map[string]interface{}{
		"custom_message": "existing text",
	}).Return(nil)

	require.NoError(t, svc.SkipMessage(context.Background(), setupID()))
}

// --- approve ---

func completePending() *domain.PendingSetup {
	return livePending(func(p *domain.PendingSetup) {
		p.RoleID = roleID
		p.ChannelID = channelID
		p.AllowedDomains = []string{"foo.edu"}
		p.CustomMessage = "Custom verify text"
	})
}

func TestApprove_PersistsConfigAndPostsAndDeletes(t *testing.T) {
	st := &mockSetupStore{}
	cs := &mockConfigStore{}
	po := &mockPoster{}
	st.On("Get", mock.Anything, setupID()).Return(completePending(), nil)
	cs.On("Get", mock.Anything, guildID).Return(nil, domain.ErrNotFound)

	var saved *domain.GuildConfig
	cs.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*domain.GuildConfig)
	}).Return(nil)
	po.On("PostMessage", mock.Anything, channelID, "Custom verify text", mock.Anything).Return(nil)
	st.On("Delete", mock.Anything, setupID()).Return(nil)

	svc := newTestService(st, cs, nil, po)
	result, err := svc.Approve(context.Background(), setupID())

	require.NoError(t, err)
	assert.False(t, result.PostWarning)
	require.NotNil(t, saved)
	assert.Equal(t, roleID, saved.RoleID)
	assert.Equal(t, channelID, saved.ChannelID)
	assert.Equal(t, []string{"foo.edu"}, saved.AllowedDomains)
	assert.Equal(t, adminID, saved.SetupBy)
	st.AssertExpectations(t)
	po.AssertExpectations(t)
}

func TestApprove_AppliesDefaults(t *testing.T) {
	st := &mockSetupStore{}
	cs := &mockConfigStore{}
	po := &mockPoster{}
	st.On("Get", mock.Anything, setupID()).Return(livePending(func(p *domain.PendingSetup) {
		p.RoleID = roleID
		p.ChannelID = channelID
	}), nil)
	cs.On("Get", mock.Anything, guildID).Return(nil, domain.ErrNotFound)

	var saved *domain.GuildConfig
	cs.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*domain.GuildConfig)
	}).Return(nil)
	po.On("PostMessage", mock.Anything, channelID, domain.DefaultVerifyMessage, mock.Anything).Return(nil)
	st.On("Delete", mock.Anything, setupID()).Return(nil)

	svc := newTestService(st, cs, nil, po)
	_, err := svc.Approve(context.Background(), setupID())

	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, domain.DefaultAllowedDomains, saved.AllowedDomains)
	assert.Equal(t, domain.DefaultVerifyMessage, saved.CustomMessage)
}

func TestApprove_PreservesOriginalCreatedAt(t *testing.T) {
	st := &mockSetupStore{}
	cs := &mockConfigStore{}
	po := &mockPoster{}
	firstSetup := baseTime.Add(-30 * 24 * time.Hour)
	st.On("Get", mock.Anything, setupID()).Return(completePending(), nil)
	cs.On("Get", mock.Anything, guildID).Return(&domain.GuildConfig{
		GuildID:   guildID,
		CreatedAt: firstSetup,
	}, nil)

	var saved *domain.GuildConfig
	cs.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*domain.GuildConfig)
	}).Return(nil)
	po.On("PostMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("Delete", mock.Anything, setupID()).Return(nil)

	svc := newTestService(st, cs, nil, po)
	_, err := svc.Approve(context.Background(), setupID())

	require.NoError(t, err)
	assert.Equal(t, firstSetup, saved.CreatedAt)
	assert.Equal(t, baseTime, saved.UpdatedAt)
}

func TestApprove_PostFailureIsWarningNotError(t *testing.T) {
	st := &mockSetupStore{}
	cs := &mockConfigStore{}
	po := &mockPoster{}
	st.On("Get", mock.Anything, setupID()).Return(completePending(), nil)
	cs.On("Get", mock.Anything, guildID).Return(nil, domain.ErrNotFound)
	cs.On("Put", mock.Anything, mock.Anything).Return(nil)
	po.On("PostMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("channel deleted"))
	st.On("Delete", mock.Anything, setupID()).Return(nil)

	svc := newTestService(st, cs, nil, po)
	result, err := svc.Approve(context.Background(), setupID())

	require.NoError(t, err)
	assert.True(t, result.PostWarning)
	st.AssertExpectations(t)
}

func TestApprove_ConfigWriteFailureAborts(t *testing.T) {
	st := &mockSetupStore{}
	cs := &mockConfigStore{}
	po := &mockPoster{}
	st.On("Get", mock.Anything, setupID()).Return(completePending(), nil)
	cs.On("Get", mock.Anything, guildID).Return(nil, domain.ErrNotFound)
	cs.On("Put", mock.Anything, mock.Anything).Return(errors.New("throttled"))

	svc := newTestService(st, cs, nil, po)
	_, err := svc.Approve(context.Background(), setupID())

	require.Error(t, err)
	po.AssertNotCalled(t, "PostMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

// --- legacy capture ---

const captureID = "01ARZ3NDEKTSV4RRFFQ69G5FAV"

func TestCompleteMessageCapture_RejectsBadID(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)
	err := svc.CompleteMessageCapture(context.Background(), "not-a-ulid", "text")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestCompleteMessageCapture_RejectsEmptyText(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)
	err := svc.CompleteMessageCapture(context.Background(), captureID, "  \n ")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestCompleteMessageCapture_ConvergesOntoOpenWizard(t *testing.T) {
	st := &mockSetupStore{}
	st.On("Get", mock.Anything, captureID).Return(livePending(func(p *domain.PendingSetup) {
		p.SetupID = captureID
	}), nil)
	st.On("Update", mock.Anything, captureID, map[string]interface{}{
		"custom_message": "captured text",
	}).Return(nil)
	st.On("Get", mock.Anything, setupID()).Return(livePending(nil), nil)
	st.On("Update", mock.Anything, setupID(), map[string]interface{}{
		"custom_message": "captured text",
	}).Return(nil)

	svc := newTestService(st, nil, nil, nil)
	require.NoError(t, svc.CompleteMessageCapture(context.Background(), captureID, "captured text"))
	st.AssertExpectations(t)
}

func TestCompleteMessageCapture_NoOpenWizardStillSucceeds(t *testing.T) {
	st := &mockSetupStore{}
	st.On("Get", mock.Anything, captureID).Return(livePending(func(p *domain.PendingSetup) {
		p.SetupID = captureID
	}), nil)
	st.On("Update", mock.Anything, captureID, mock.Anything).Return(nil)
	st.On("Get", mock.Anything, setupID()).Return(nil, domain.ErrNotFound)

	svc := newTestService(st, nil, nil, nil)
	require.NoError(t, svc.CompleteMessageCapture(context.Background(), captureID, "captured text"))
}
