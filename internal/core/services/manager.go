package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"chaty/internal/core/contracts"
	"chaty/internal/core/domain"
	"chaty/internal/metrics"
	"chaty/pkg/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("chaty-services")

type eventHandler func(ctx context.Context, s *Session, data json.RawMessage) error

// ManagerService is the inbound socket dispatcher. Every frame of one
// connection goes through HandleMessage in arrival order.
type ManagerService struct {
	log      *slog.Logger
	registry contracts.Registry
	routes   map[string]eventHandler
}

func NewManagerService(
	log *slog.Logger,
	registry contracts.Registry,
	conversations *ConversationService,
	calls *CallService,
) *ManagerService {
	m := &ManagerService{log: log, registry: registry}
	m.routes = map[string]eventHandler{
		domain.EventConversationJoin:  conversations.Join,
		domain.EventConversationLeave: conversations.Leave,
		domain.EventCallStart:         calls.Start,
		domain.EventCallAnswer:        calls.Answer,
		domain.EventCallEnd:           calls.End,
		domain.EventWebRTCOffer: func(ctx context.Context, s *Session, data json.RawMessage) error {
			return calls.RelaySignal(ctx, s, domain.EventWebRTCOffer, data)
		},
		domain.EventWebRTCAnswer: func(ctx context.Context, s *Session, data json.RawMessage) error {
			return calls.RelaySignal(ctx, s, domain.EventWebRTCAnswer, data)
		},
		domain.EventWebRTCCandidate: calls.RelayCandidate,
	}
	return m
}

func (m *ManagerService) HandleMessage(ctx context.Context, s *Session, raw []byte) {
	var frame domain.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
		metrics.InboundEvents.WithLabelValues("malformed", "invalid").Inc()
		m.registry.Emit(ctx, s.ID(), domain.EventError, domain.ErrorPayload{Message: domain.MsgInvalidPayload})
		return
	}
	handler, ok := m.routes[frame.Event]
	if !ok {
		metrics.InboundEvents.WithLabelValues("unknown", "invalid").Inc()
		m.registry.Emit(ctx, s.ID(), domain.EventError, domain.ErrorPayload{Message: domain.MsgUnknownEvent})
		return
	}

	ctx, span := tracer.Start(ctx, "ManagerService.HandleMessage", trace.WithAttributes(
		attribute.String("event", frame.Event),
		attribute.String("user_id", s.UserID()),
		attribute.String("conn_id", s.ID()),
		attribute.Int("payload_size", len(raw)),
	))
	defer span.End()

	err := handler(ctx, s, frame.Data)
	if err == nil {
		metrics.InboundEvents.WithLabelValues(frame.Event, "ok").Inc()
		return
	}
	outcome := "error"
	switch {
	case errors.Is(err, domain.ErrValidation):
		outcome = "invalid"
	case errors.Is(err, domain.ErrConversationNotFound), errors.Is(err, domain.ErrMessageNotFound):
		outcome = "unauthorized"
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		m.log.ErrorContext(ctx, "manager - handle message - handler failed", logging.Event(frame.Event), logging.User(s.UserID()), logging.Err(err))
	}
	metrics.InboundEvents.WithLabelValues(frame.Event, outcome).Inc()
	m.registry.Emit(ctx, s.ID(), domain.ErrorEvent(frame.Event), domain.ErrorPayload{Message: domain.PublicMessage(err)})
}
