package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/loyalty-backend/api/middleware"
	"github.com/angelmondragon/loyalty-backend/internal/loyalty"
	"github.com/angelmondragon/loyalty-backend/internal/rewards"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

type fakeLoyalty struct {
	earn        func(ctx context.Context, input loyalty.EarnInput) (*loyalty.EarnResult, error)
	redeem      func(ctx context.Context, input loyalty.RedeemInput) (*loyalty.RedeemResult, error)
	getSummary  func(ctx context.Context, accountID uuid.UUID) (*loyalty.Summary, error)
	getHistory  func(ctx context.Context, input loyalty.HistoryInput) (*loyalty.HistoryPage, error)
	listRewards func(ctx context.Context, accountID uuid.UUID) ([]loyalty.RewardOffer, error)
}

func (f *fakeLoyalty) Earn(ctx context.Context, input loyalty.EarnInput) (*loyalty.EarnResult, error) {
	return f.earn(ctx, input)
}

func (f *fakeLoyalty) Redeem(ctx context.Context, input loyalty.RedeemInput) (*loyalty.RedeemResult, error) {
	return f.redeem(ctx, input)
}

func (f *fakeLoyalty) GetSummary(ctx context.Context, accountID uuid.UUID) (*loyalty.Summary, error) {
	return f.getSummary(ctx, accountID)
}

func (f *fakeLoyalty) GetHistory(ctx context.Context, input loyalty.HistoryInput) (*loyalty.HistoryPage, error) {
	return f.getHistory(ctx, input)
}

func (f *fakeLoyalty) ListRewards(ctx context.Context, accountID uuid.UUID) ([]loyalty.RewardOffer, error) {
	return f.listRewards(ctx, accountID)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
}

func authedRequest(method, target, body string, accountID uuid.UUID) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := middleware.WithAccountID(req.Context(), accountID.String())
	return req.WithContext(ctx)
}

func TestLoyaltySummary(t *testing.T) {
	accountID := uuid.New()
	svc := &fakeLoyalty{
		getSummary: func(_ context.Context, got uuid.UUID) (*loyalty.Summary, error) {
			assert.Equal(t, accountID, got)
			return &loyalty.Summary{AccountID: got, Balance: 1200, LifetimeEarned: 1700, Tier: "Silver"}, nil
		},
	}

	rec := httptest.NewRecorder()
	LoyaltySummary(svc, testLogger(t))(rec, authedRequest(http.MethodGet, "/api/v1/loyalty/summary", "", accountID))

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data loyalty.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, int64(1200), envelope.Data.Balance)
	assert.Equal(t, "Silver", envelope.Data.Tier)
}

func TestLoyaltySummaryMissingAccount(t *testing.T) {
	svc := &fakeLoyalty{
		getSummary: func(context.Context, uuid.UUID) (*loyalty.Summary, error) {
			t.Fatal("service should not be called without account context")
			return nil, nil
		},
	}

	rec := httptest.NewRecorder()
	LoyaltySummary(svc, testLogger(t))(rec, httptest.NewRequest(http.MethodGet, "/api/v1/loyalty/summary", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoyaltyHistoryPassesQueryParams(t *testing.T) {
	accountID := uuid.New()
	next := "eyJjdXJzb3IiOiJ0b2tlbiJ9"
	svc := &fakeLoyalty{
		getHistory: func(_ context.Context, input loyalty.HistoryInput) (*loyalty.HistoryPage, error) {
			assert.Equal(t, accountID, input.AccountID)
			assert.Equal(t, 5, input.Limit)
			assert.Equal(t, "abc", input.Cursor)
			return &loyalty.HistoryPage{Entries: []loyalty.EntryDTO{}, NextCursor: &next}, nil
		},
	}

	rec := httptest.NewRecorder()
	req := authedRequest(http.MethodGet, "/api/v1/loyalty/history?limit=5&cursor=abc", "", accountID)
	LoyaltyHistory(svc, testLogger(t))(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data loyalty.HistoryPage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Data.NextCursor)
	assert.Equal(t, next, *envelope.Data.NextCursor)
}

func TestLoyaltyHistoryRejectsBadLimit(t *testing.T) {
	svc := &fakeLoyalty{
		getHistory: func(context.Context, loyalty.HistoryInput) (*loyalty.HistoryPage, error) {
			t.Fatal("service should not be called with an invalid limit")
			return nil, nil
		},
	}

	rec := httptest.NewRecorder()
	req := authedRequest(http.MethodGet, "/api/v1/loyalty/history?limit=boom", "", uuid.New())
	LoyaltyHistory(svc, testLogger(t))(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoyaltyRewards(t *testing.T) {
	accountID := uuid.New()
	svc := &fakeLoyalty{
		listRewards: func(_ context.Context, got uuid.UUID) ([]loyalty.RewardOffer, error) {
			assert.Equal(t, accountID, got)
			return []loyalty.RewardOffer{
				{Reward: rewards.Reward{ID: "discount-10", Cost: 500}, Affordable: true},
				{Reward: rewards.Reward{ID: "free-wash", Cost: 2000}, Affordable: false},
			}, nil
		},
	}

	rec := httptest.NewRecorder()
	LoyaltyRewards(svc, testLogger(t))(rec, authedRequest(http.MethodGet, "/api/v1/loyalty/rewards", "", accountID))

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data struct {
			Rewards []loyalty.RewardOffer `json:"rewards"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Rewards, 2)
	assert.True(t, envelope.Data.Rewards[0].Affordable)
	assert.False(t, envelope.Data.Rewards[1].Affordable)
}

func TestLoyaltyRedeem(t *testing.T) {
	accountID := uuid.New()
	svc := &fakeLoyalty{
		redeem: func(_ context.Context, input loyalty.RedeemInput) (*loyalty.RedeemResult, error) {
			assert.Equal(t, accountID, input.AccountID)
			assert.Equal(t, "discount-10", input.RewardID)
			return &loyalty.RedeemResult{
				Reward:  rewards.Reward{ID: "discount-10", Cost: 500},
				Balance: 700,
			}, nil
		},
	}

	rec := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/v1/loyalty/redeem", `{"reward_id":"discount-10"}`, accountID)
	LoyaltyRedeem(svc, testLogger(t))(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data loyalty.RedeemResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, int64(700), envelope.Data.Balance)
}

func TestLoyaltyRedeemValidation(t *testing.T) {
	svc := &fakeLoyalty{
		redeem: func(context.Context, loyalty.RedeemInput) (*loyalty.RedeemResult, error) {
			t.Fatal("service should not be called with an invalid body")
			return nil, nil
		},
	}

	for name, body := range map[string]string{
		"empty body":     `{}`,
		"unknown fields": `{"reward_id":"discount-10","extra":true}`,
		"bad json":       `reward`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := authedRequest(http.MethodPost, "/api/v1/loyalty/redeem", body, uuid.New())
			LoyaltyRedeem(svc, testLogger(t))(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestLoyaltyRedeemInsufficientBalance(t *testing.T) {
	svc := &fakeLoyalty{
		redeem: func(context.Context, loyalty.RedeemInput) (*loyalty.RedeemResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "balance below reward cost").
				WithDetails(map[string]any{"balance": 100, "required": 500})
		},
	}

	rec := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/v1/loyalty/redeem", `{"reward_id":"discount-10"}`, uuid.New())
	LoyaltyRedeem(svc, testLogger(t))(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, string(pkgerrors.CodeInsufficientBalance), envelope.Error.Code)
}
