package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-relay/domain/repositories"
	"github.com/satriahrh/arunika-relay/internal/auth"
	"github.com/satriahrh/arunika-relay/internal/websocket"
)

// Dependencies are the collaborators the HTTP surface needs.
type Dependencies struct {
	Hub       *websocket.Hub
	WebSocket *websocket.Handler
	Sessions  repositories.SessionRegistry

	// Issuer is nil when websocket auth is disabled.
	Issuer *auth.TokenIssuer

	Logger *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "arunika-relay",
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.GET("/sessions", func(c echo.Context) error {
		return listSessions(c, deps)
	})
	v1.POST("/auth/token", func(c echo.Context) error {
		return issueToken(c, deps)
	})

	e.GET("/ws", func(c echo.Context) error {
		return serveWebSocket(c, deps)
	})
}

func listSessions(c echo.Context, deps Dependencies) error {
	sessions := deps.Sessions.ListActive()
	if sessions == nil {
		sessions = []string{}
	}
	return c.JSON(http.StatusOK, SessionsResponse{
		Sessions:    sessions,
		Connections: deps.Hub.ConnectedCount(),
	})
}

func issueToken(c echo.Context, deps Dependencies) error {
	if deps.Issuer == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "auth_disabled",
			Message: "Token issuance is disabled on this server",
		})
	}

	// The session id is always server-chosen; the request body is ignored.
	sessionID := uuid.NewString()

	token, expiresAt, err := deps.Issuer.GenerateSessionToken(sessionID)
	if err != nil {
		deps.Logger.Error("Failed to generate session token",
			zap.String("sessionID", sessionID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}

	deps.Logger.Info("Session token issued", zap.String("sessionID", sessionID))

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		SessionID: sessionID,
	})
}

// serveWebSocket resolves the session for the connection and hands it to the
// websocket handler. With auth enabled the session comes from the token;
// otherwise from the session_id query parameter or a fresh UUID.
func serveWebSocket(c echo.Context, deps Dependencies) error {
	if deps.Issuer == nil {
		sessionID := strings.TrimSpace(c.QueryParam("session_id"))
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		return deps.WebSocket.HandleWebSocket(c, sessionID)
	}

	token := c.QueryParam("token")
	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}

	if token == "" {
		deps.Logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header or token query parameter",
		})
	}

	claims, err := deps.Issuer.ValidateToken(token)
	if err != nil {
		deps.Logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	deps.Logger.Info("WebSocket connection authenticated", zap.String("sessionID", claims.SessionID))

	return deps.WebSocket.HandleWebSocket(c, claims.SessionID)
}
