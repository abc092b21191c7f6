package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"response-broker/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// Responder is the broker surface the HTTP boundary needs.
type Responder interface {
	Respond(ctx context.Context, in usecase.RespondInput) (usecase.RespondOutput, error)
}

type Handler struct {
	broker Responder
	logger *slog.Logger
}

type respondRequest struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
}

type respondResponse struct {
	Reply   string            `json:"reply"`
	Channel string            `json:"channel"`
	Failed  bool              `json:"failed"`
	Reasons map[string]string `json:"reasons,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(broker Responder, logger *slog.Logger) (*Handler, error) {
	if broker == nil {
		return nil, errors.New("handler: broker must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{broker: broker, logger: logger}, nil
}

// Handle serves POST {"channel","message"}. A missing channel starts a new
// one; the channel in use is echoed back so callers can continue it.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := headerValue(req.Headers, correlationHeader)
	if corrID == "" {
		corrID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", corrID)

	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, corrID, errorResponse{
			Error:  string(usecase.ErrorInvalidInput),
			Reason: "method_not_allowed",
		}), nil
	}

	var body respondRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return jsonResponse(http.StatusBadRequest, corrID, errorResponse{
			Error:  string(usecase.ErrorInvalidInput),
			Reason: "invalid_json",
		}), nil
	}
	channel := strings.TrimSpace(body.Channel)
	if channel == "" {
		channel = uuid.NewString()
	}

	out, err := h.broker.Respond(ctx, usecase.RespondInput{Channel: channel, Message: body.Message})
	if err != nil {
		status, resp := mapError(err)
		if status >= http.StatusInternalServerError {
			logger.Error("respond failed", "channel", channel, "err", err)
		}
		return jsonResponse(status, corrID, resp), nil
	}

	resp := respondResponse{Reply: out.Reply, Channel: channel, Failed: out.Failed}
	if out.Failure != nil {
		resp.Reasons = out.Failure.Reasons()
	}
	logger.Info("respond", "channel", channel, "failed", out.Failed, "persisted", out.Persisted)
	return jsonResponse(http.StatusOK, corrID, resp), nil
}

func mapError(err error) (int, errorResponse) {
	code, reason := usecase.Classify(err)
	resp := errorResponse{Error: string(code), Reason: reason}
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, resp
	case usecase.ErrorStoreUnavailable:
		return http.StatusServiceUnavailable, resp
	default:
		return http.StatusInternalServerError, resp
	}
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func jsonResponse(status int, corrID string, v any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(raw),
	}
}
