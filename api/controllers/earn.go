package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/loyalty-backend/api/responses"
	"github.com/angelmondragon/loyalty-backend/api/validators"
	"github.com/angelmondragon/loyalty-backend/internal/loyalty"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

type earnRequest struct {
	AccountID  string          `json:"account_id" validate:"required,uuid"`
	SourceType string          `json:"source_type" validate:"required"`
	SourceID   string          `json:"source_id" validate:"required"`
	Points     *int64          `json:"points,omitempty"`
	Amount     *string         `json:"amount,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// InternalEarn records an earn event on behalf of another backend
// service. Duplicate submissions replay the original entry.
func InternalEarn(service loyalty.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body earnRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := buildEarnInput(body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := service.Earn(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Duplicate {
			responses.WriteSuccess(w, result)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func buildEarnInput(body earnRequest) (loyalty.EarnInput, error) {
	accountID, err := uuid.Parse(body.AccountID)
	if err != nil {
		return loyalty.EarnInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account_id")
	}

	sourceType, err := enums.ParsePointsSourceType(strings.TrimSpace(body.SourceType))
	if err != nil {
		return loyalty.EarnInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid source_type")
	}

	input := loyalty.EarnInput{
		AccountID:  accountID,
		SourceType: sourceType,
		SourceID:   strings.TrimSpace(body.SourceID),
		Points:     body.Points,
		Metadata:   body.Metadata,
	}
	if body.Amount != nil {
		amount, err := decimal.NewFromString(*body.Amount)
		if err != nil {
			return loyalty.EarnInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
		}
		input.Amount = &amount
	}
	return input, nil
}
