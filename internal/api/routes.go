package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/entities"
	"github.com/natashamaes/concierge/internal/auth"
	"github.com/natashamaes/concierge/internal/config"
	"github.com/natashamaes/concierge/internal/websocket"
	"github.com/natashamaes/concierge/usecase"
)

// Version is reported by the root and debug endpoints
const Version = "9.0"

// Dependencies are the services the HTTP surface is built on
type Dependencies struct {
	Config    *config.Config
	Hub       *websocket.Hub
	Widgets   *usecase.WidgetRegistry
	Concierge *usecase.ConciergeService
	Tokens    *auth.Issuer
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, logger *zap.Logger) {
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "Natasha Mae's Enterprise Server v"+Version+" — Online")
	})

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "natashamaes-concierge",
			"widgets": deps.Widgets.Len(),
			"sockets": deps.Hub.ClientCount(),
		})
	})

	e.GET("/debug", func(c echo.Context) error {
		status := deps.Config.Masked()
		status["version"] = Version
		return c.JSON(http.StatusOK, status)
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Phone agent webhooks
	hooks := &webhookHandler{concierge: deps.Concierge, logger: logger}
	e.POST("/inbound", hooks.inbound)
	e.POST("/send-sms", hooks.sendSMS)
	e.POST("/calendar-tool", hooks.calendarTool)

	// API v1 routes
	v1 := e.Group("/api/v1")

	// Site content
	v1.GET("/venues", listVenues)
	v1.GET("/venues/:id", getVenue)
	v1.GET("/services", listServices)

	// Chat widget APIs
	widgets := &widgetHandler{widgets: deps.Widgets, tokens: deps.Tokens, logger: logger}
	v1.POST("/widgets", widgets.create)

	owned := v1.Group("/widgets/:id", requireWidgetToken(deps.Tokens, logger))
	owned.DELETE("", widgets.remove)
	owned.GET("/transcript", widgets.transcript)
	owned.POST("/messages", widgets.message)

	// WebSocket endpoint with JWT validation
	e.GET("/ws/voice", func(c echo.Context) error {
		return websocketWithAuth(deps.Hub, deps.Tokens, c, logger)
	})
}

func listVenues(c echo.Context) error {
	return c.JSON(http.StatusOK, entities.Venues)
}

func getVenue(c echo.Context) error {
	venue, ok := entities.FindVenue(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "venue_not_found",
			Message: "No venue with id " + c.Param("id"),
		})
	}
	return c.JSON(http.StatusOK, venue)
}

func listServices(c echo.Context) error {
	return c.JSON(http.StatusOK, entities.Services)
}

// widgetHandler serves the chat widget lifecycle
type widgetHandler struct {
	widgets *usecase.WidgetRegistry
	tokens  *auth.Issuer
	logger  *zap.Logger
}

func (h *widgetHandler) create(c echo.Context) error {
	widget := h.widgets.Create()

	token, expiresAt, err := h.tokens.GenerateWidgetToken(widget.ID())
	if err != nil {
		h.logger.Error("Failed to generate widget token",
			zap.String("widget_id", widget.ID()),
			zap.Error(err))
		h.discard(widget.ID())
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	return c.JSON(http.StatusCreated, WidgetResponse{
		WidgetID:   widget.ID(),
		Token:      token,
		ExpiresAt:  expiresAt,
		Transcript: widget.Transcript().Entries(),
	})
}

// discard closes a widget the caller never received
func (h *widgetHandler) discard(widgetID string) {
	if err := h.widgets.Remove(widgetID); err != nil {
		h.logger.Warn("Failed to discard widget",
			zap.String("widget_id", widgetID),
			zap.Error(err))
	}
}

func (h *widgetHandler) remove(c echo.Context) error {
	if err := h.widgets.Remove(c.Param("id")); err != nil {
		return widgetError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *widgetHandler) transcript(c echo.Context) error {
	widget, err := h.widgets.Get(c.Param("id"))
	if err != nil {
		return widgetError(c, err)
	}
	return c.JSON(http.StatusOK, TranscriptResponse{
		WidgetID:   widget.ID(),
		Transcript: widget.Transcript().Entries(),
	})
}

func (h *widgetHandler) message(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	widget, err := h.widgets.Get(c.Param("id"))
	if err != nil {
		return widgetError(c, err)
	}

	reply, err := widget.Chat(c.Request().Context(), req.Message, req.Speak)
	if err != nil {
		return widgetError(c, err)
	}

	return c.JSON(http.StatusOK, ChatResponse{Reply: reply.Entry, Audio: reply.Audio})
}

func widgetError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrWidgetNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "widget_not_found",
			Message: "Widget does not exist or was closed",
		})
	case errors.Is(err, usecase.ErrEmptyMessage):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "empty_message",
			Message: "Message must not be empty",
		})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}

// bearerToken reads the token from the Authorization header, then the token query parameter
func bearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}
	return c.QueryParam("token")
}

// authenticate validates the request token and writes the rejection when it fails
func authenticate(tokens *auth.Issuer, c echo.Context, logger *zap.Logger) (*auth.JWTClaims, error) {
	token := bearerToken(c)
	if token == "" {
		logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
		return nil, c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header or token query parameter",
		})
	}

	claims, err := tokens.ValidateToken(token)
	if err != nil {
		logger.Warn("Request rejected: invalid token", zap.Error(err))
		return nil, c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}
	return claims, nil
}

// requireWidgetToken only lets a widget's own token reach its routes
func requireWidgetToken(tokens *auth.Issuer, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := authenticate(tokens, c, logger)
			if claims == nil {
				return err
			}

			if claims.WidgetID != c.Param("id") {
				logger.Warn("Request rejected: token belongs to another widget",
					zap.String("widget_id", c.Param("id")),
					zap.String("token_widget_id", claims.WidgetID))
				return c.JSON(http.StatusForbidden, ErrorResponse{
					Error:   "widget_mismatch",
					Message: "Token does not grant access to this widget",
				})
			}

			return next(c)
		}
	}
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, tokens *auth.Issuer, c echo.Context, logger *zap.Logger) error {
	claims, err := authenticate(tokens, c, logger)
	if claims == nil {
		return err
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("widget_id", claims.WidgetID),
		zap.String("role", claims.Role))

	// Handle WebSocket connection with authenticated widget ID
	return websocket.HandleWebSocketWithAuth(hub, c, claims.WidgetID, logger)
}
