package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/loyalty-backend/internal/loyalty"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

func postEarn(t *testing.T, svc loyalty.Service, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/internal/v1/earn", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	InternalEarn(svc, testLogger(t))(rec, req)
	return rec
}

func TestInternalEarnRecordsEntry(t *testing.T) {
	accountID := uuid.New()
	svc := &fakeLoyalty{
		earn: func(_ context.Context, input loyalty.EarnInput) (*loyalty.EarnResult, error) {
			assert.Equal(t, accountID, input.AccountID)
			assert.Equal(t, enums.PointsSourceTypeBooking, input.SourceType)
			assert.Equal(t, "booking-77", input.SourceID)
			require.NotNil(t, input.Points)
			assert.Equal(t, int64(250), *input.Points)
			return &loyalty.EarnResult{Balance: 250}, nil
		},
	}

	rec := postEarn(t, svc, `{"account_id":"`+accountID.String()+`","source_type":"booking","source_id":"booking-77","points":250}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var envelope struct {
		Data loyalty.EarnResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, int64(250), envelope.Data.Balance)
}

func TestInternalEarnParsesAmount(t *testing.T) {
	svc := &fakeLoyalty{
		earn: func(_ context.Context, input loyalty.EarnInput) (*loyalty.EarnResult, error) {
			require.NotNil(t, input.Amount)
			assert.Equal(t, "120.5", input.Amount.String())
			assert.Nil(t, input.Points)
			return &loyalty.EarnResult{Balance: 120}, nil
		},
	}

	rec := postEarn(t, svc, `{"account_id":"`+uuid.NewString()+`","source_type":"booking","source_id":"booking-78","amount":"120.50"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestInternalEarnForwardsMetadata(t *testing.T) {
	svc := &fakeLoyalty{
		earn: func(_ context.Context, input loyalty.EarnInput) (*loyalty.EarnResult, error) {
			require.NotNil(t, input.Metadata)
			assert.JSONEq(t, `{"booking_total":"120.50","city":"austin"}`, string(input.Metadata))
			return &loyalty.EarnResult{Balance: 120}, nil
		},
	}

	rec := postEarn(t, svc, `{"account_id":"`+uuid.NewString()+`","source_type":"booking","source_id":"booking-79","points":120,"metadata":{"booking_total":"120.50","city":"austin"}}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestInternalEarnDuplicateReturnsOK(t *testing.T) {
	svc := &fakeLoyalty{
		earn: func(context.Context, loyalty.EarnInput) (*loyalty.EarnResult, error) {
			return &loyalty.EarnResult{Duplicate: true, Balance: 250}, nil
		},
	}

	rec := postEarn(t, svc, `{"account_id":"`+uuid.NewString()+`","source_type":"referral","source_id":"ref-1","points":100}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data loyalty.EarnResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Duplicate)
}

func TestInternalEarnValidation(t *testing.T) {
	svc := &fakeLoyalty{
		earn: func(context.Context, loyalty.EarnInput) (*loyalty.EarnResult, error) {
			t.Fatal("service should not be called with an invalid body")
			return nil, nil
		},
	}

	for name, body := range map[string]string{
		"missing account": `{"source_type":"booking","source_id":"b-1","points":10}`,
		"bad account id":  `{"account_id":"not-a-uuid","source_type":"booking","source_id":"b-1","points":10}`,
		"bad source type": `{"account_id":"` + uuid.NewString() + `","source_type":"teleport","source_id":"b-1","points":10}`,
		"bad amount":      `{"account_id":"` + uuid.NewString() + `","source_type":"booking","source_id":"b-1","amount":"lots"}`,
		"unknown fields":  `{"account_id":"` + uuid.NewString() + `","source_type":"booking","source_id":"b-1","points":10,"tier":"Gold"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := postEarn(t, svc, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
