package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"token_auth_service/internal/common"
	"token_auth_service/internal/service"
	"token_auth_service/internal/validation"

	"github.com/IBM/sarama"
)

// Message patterns served over the bus.
const (
	PatternRegister      = "auth.register"
	PatternLogin         = "auth.login"
	PatternValidateToken = "auth.validate_token"
	PatternValidateUser  = "auth.validate_user"
)

const (
	HeaderCorrelationID = "kafka_correlationId"
	HeaderReplyTopic    = "kafka_replyTopic"
)

// Reply error codes.
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeConflict        = "CONFLICT"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeInternal        = "INTERNAL"
	CodeUnknownPattern  = "UNKNOWN_PATTERN"
)

type Request struct {
	Pattern string          `json:"pattern"`
	ID      string          `json:"id"`
	Data    json.RawMessage `json:"data"`
}

type Reply struct {
	ID       string      `json:"id"`
	Response any         `json:"response,omitempty"`
	Err      *ReplyError `json:"err,omitempty"`
}

type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type credentialsData struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenData struct {
	Token string `json:"token"`
}

type userData struct {
	UserID string `json:"userId"`
}

// AuthHandler turns request messages into orchestrator calls and publishes
// one reply per request.
type AuthHandler struct {
	serviceLayer service.Service
	publisher    Publisher
	replyTopic   string
	log          *slog.Logger
}

func NewAuthHandler(srvc service.Service, publisher Publisher, replyTopic string, lgr *slog.Logger) *AuthHandler {
	if lgr == nil {
		lgr = slog.Default()
	}
	return &AuthHandler{
		serviceLayer: srvc,
		publisher:    publisher,
		replyTopic:   replyTopic,
		log:          lgr,
	}
}

func (h *AuthHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	const op = "bus.HandleMessage"

	log := h.log.With(slog.String("op", op))

	correlationID := header(msg, HeaderCorrelationID)
	replyTopic := header(msg, HeaderReplyTopic)
	if replyTopic == "" {
		replyTopic = h.replyTopic
	}

	var req Request
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		log.Error("failed to decode request", slog.Any("error", err))

		return h.reply(ctx, replyTopic, Reply{
			ID:  correlationID,
			Err: &ReplyError{Code: CodeInvalidInput, Message: "malformed request"},
		})
	}
	if correlationID == "" {
		correlationID = req.ID
	}

	log = log.With(slog.String("pattern", req.Pattern), slog.String("correlation_id", correlationID))

	response, err := h.dispatch(ctx, req)
	out := Reply{ID: correlationID}
	if err != nil {
		out.Err = toReplyError(err)
		if out.Err.Code == CodeInternal {
			log.Error("request failed", slog.Any("error", err))
		}
	} else {
		out.Response = response
	}

	if err := h.reply(ctx, replyTopic, out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

var errUnknownPattern = errors.New("unknown pattern")

func (h *AuthHandler) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Pattern {
	case PatternRegister:
		var data credentialsData
		if err := decodeData(req.Data, &data); err != nil {
			return nil, err
		}
		creds, err := validation.ValidateRegister(data.Email, data.Password)
		if err != nil {
			return nil, err
		}
		return h.serviceLayer.Register(ctx, creds.Email, creds.Password)

	case PatternLogin:
		var data credentialsData
		if err := decodeData(req.Data, &data); err != nil {
			return nil, err
		}
		creds, err := validation.ValidateLogin(data.Email, data.Password)
		if err != nil {
			return nil, err
		}
		return h.serviceLayer.Login(ctx, creds.Email, creds.Password)

	case PatternValidateToken:
		var data tokenData
		if err := decodeData(req.Data, &data); err != nil {
			return nil, err
		}
		token, err := validation.ValidateToken(data.Token)
		if err != nil {
			return nil, err
		}
		return h.serviceLayer.ValidateToken(ctx, token)

	case PatternValidateUser:
		var data userData
		if err := decodeData(req.Data, &data); err != nil {
			return nil, err
		}
		userID, err := validation.ValidateUserID(data.UserID)
		if err != nil {
			return nil, err
		}
		return h.serviceLayer.ValidateUserExists(ctx, userID)
	}

	return nil, fmt.Errorf("%w: %q", errUnknownPattern, req.Pattern)
}

func (h *AuthHandler) reply(ctx context.Context, topic string, out Reply) error {
	if topic == "" {
		h.log.Warn("dropping reply without topic", slog.String("correlation_id", out.ID))
		return nil
	}
	return h.publisher.PublishJSON(ctx, topic, out.ID, out, Header{Key: HeaderCorrelationID, Value: out.ID})
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: data is required", common.ErrInvalidInput)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return nil
}

func toReplyError(err error) *ReplyError {
	var verrs validation.ValidationErrors

	switch {
	case errors.As(err, &verrs):
		msg := verrs.Error()
		if len(verrs) > 0 {
			msg = verrs[0].Message
		}
		return &ReplyError{Code: CodeInvalidInput, Message: msg}
	case errors.Is(err, common.ErrInvalidInput):
		return &ReplyError{Code: CodeInvalidInput, Message: "invalid request"}
	case errors.Is(err, common.ErrConflict):
		return &ReplyError{Code: CodeConflict, Message: "User already exists"}
	case errors.Is(err, common.ErrUnauthenticated):
		return &ReplyError{Code: CodeUnauthenticated, Message: "Invalid credentials"}
	case errors.Is(err, errUnknownPattern):
		return &ReplyError{Code: CodeUnknownPattern, Message: err.Error()}
	default:
		return &ReplyError{Code: CodeInternal, Message: "internal error"}
	}
}

func header(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
