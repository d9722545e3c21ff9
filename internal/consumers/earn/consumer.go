package earn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/loyalty-backend/internal/loyalty"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

// Payload is the wire shape producers publish for one earn event.
// Points and Amount are mutually exclusive: bookings publish the paid
// amount, fixed-value sources publish points directly.
type Payload struct {
	EventID    string          `json:"event_id"`
	AccountID  string          `json:"account_id"`
	SourceType string          `json:"source_type"`
	SourceID   string          `json:"source_id"`
	Points     *int64          `json:"points,omitempty"`
	Amount     *string         `json:"amount,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

type earnRecorder interface {
	Earn(ctx context.Context, input loyalty.EarnInput) (*loyalty.EarnResult, error)
}

// Service consumes earn events from Pub/Sub and records them on the
// ledger. Replays are harmless: the ledger deduplicates on the source
// key, so the consumer needs no idempotency store of its own.
type Service struct {
	subscription *gcppubsub.Subscriber
	loyalty      earnRecorder
	logg         *logger.Logger
}

// NewService creates a new earn consumer service.
func NewService(subscription *gcppubsub.Subscriber, recorder earnRecorder, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("earn subscription is required")
	}
	if recorder == nil {
		return nil, errors.New("loyalty service is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		subscription: subscription,
		loyalty:      recorder,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run starts consuming earn messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}
	logCtx := s.logg.WithFields(ctx, fields)

	input, payload, err := s.buildInput(msg)
	if err != nil {
		// A message that cannot be decoded will never decode on redelivery.
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "dropping malformed earn event")
		return processResult{}
	}
	fields["event_id"] = payload.EventID
	logCtx = s.logg.WithFields(logCtx, fields)
	logCtx = s.logg.WithSource(logCtx, payload.SourceType, payload.SourceID)

	result, err := s.loyalty.Earn(logCtx, input)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping invalid earn event")
			return processResult{}
		}
		s.logg.Error(logCtx, "failed to record earn event", err)
		return processResult{nack: true}
	}

	if result.Duplicate {
		s.logg.Info(logCtx, "earn event already recorded")
		return processResult{}
	}
	s.logg.Info(logCtx, "earn event recorded")
	return processResult{}
}

func (s *Service) buildInput(msg *gcppubsub.Message) (loyalty.EarnInput, *Payload, error) {
	var payload Payload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return loyalty.EarnInput{}, nil, fmt.Errorf("decode earn payload: %w", err)
	}

	accountID, err := uuid.Parse(strings.TrimSpace(payload.AccountID))
	if err != nil {
		return loyalty.EarnInput{}, nil, fmt.Errorf("account_id: %w", err)
	}

	sourceType, err := enums.ParsePointsSourceType(strings.TrimSpace(payload.SourceType))
	if err != nil {
		return loyalty.EarnInput{}, nil, fmt.Errorf("source_type: %w", err)
	}

	input := loyalty.EarnInput{
		AccountID:  accountID,
		SourceType: sourceType,
		SourceID:   strings.TrimSpace(payload.SourceID),
		Points:     payload.Points,
		Metadata:   payload.Metadata,
	}
	if payload.Amount != nil {
		amount, err := decimal.NewFromString(strings.TrimSpace(*payload.Amount))
		if err != nil {
			return loyalty.EarnInput{}, nil, fmt.Errorf("amount: %w", err)
		}
		input.Amount = &amount
	}
	return input, &payload, nil
}
