package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/integration-hub/internal/domain/integration"
	"github.com/smallbiznis/integration-hub/internal/service/broker"
)

// closeWindowHTML tells the popup the flow opened to close itself; the web
// client polls for the window closing and then collects the credentials.
const closeWindowHTML = `<html>
    <script>
        window.close();
    </script>
</html>`

// IntegrationHandler orchestrates the integration endpoints.
type IntegrationHandler struct {
	broker broker.Service
	logger *zap.Logger
}

// NewIntegrationHandler creates the handler set.
func NewIntegrationHandler(b broker.Service, logger *zap.Logger) *IntegrationHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &IntegrationHandler{broker: b, logger: logger}
}

type identityRequest struct {
	UserID string `form:"user_id" binding:"required"`
	OrgID  string `form:"org_id" binding:"required"`
}

// Authorize starts the OAuth flow and returns the authorization redirect URL.
func (h *IntegrationHandler) Authorize(c *gin.Context) {
	var req identityRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "user_id and org_id are required."})
		return
	}

	authURL, err := h.broker.Authorize(c.Request.Context(), c.Param("integration"), req.UserID, req.OrgID)
	if err != nil {
		h.respondBrokerError(c, err)
		return
	}
	c.JSON(http.StatusOK, authURL)
}

// OAuthCallback completes the flow: validates state, exchanges the code,
// stores credentials, and closes the popup window.
func (h *IntegrationHandler) OAuthCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		description := c.Query("error_description")
		if description == "" {
			description = errParam
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errParam, "error_description": description})
		return
	}

	code := strings.TrimSpace(c.Query("code"))
	state := strings.TrimSpace(c.Query("state"))
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "code and state are required."})
		return
	}

	err := h.broker.HandleCallback(c.Request.Context(), c.Param("integration"), broker.CallbackInput{
		Code:  code,
		State: state,
	})
	if err != nil {
		h.respondBrokerError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(closeWindowHTML))
}

// Credentials hands the stored token payload to the client exactly once.
func (h *IntegrationHandler) Credentials(c *gin.Context) {
	var req identityRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "user_id and org_id are required."})
		return
	}

	creds, err := h.broker.Credentials(c.Request.Context(), c.Param("integration"), req.UserID, req.OrgID)
	if err != nil {
		h.respondBrokerError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", creds)
}

// Load lists the provider's items using the supplied credential payload.
func (h *IntegrationHandler) Load(c *gin.Context) {
	var req struct {
		Credentials string `form:"credentials" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "credentials are required."})
		return
	}

	items, err := h.broker.LoadItems(c.Request.Context(), c.Param("integration"), req.Credentials)
	if err != nil {
		h.respondBrokerError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *IntegrationHandler) respondBrokerError(c *gin.Context, err error) {
	var exchangeErr *integration.TokenExchangeError
	switch {
	case errors.Is(err, integration.ErrUnsupportedIntegration):
		h.logger.Warn("unsupported integration", zap.String("integration", c.Param("integration")))
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_integration", "error_description": "Unknown integration name."})
	case errors.Is(err, integration.ErrMalformedState):
		h.logger.Warn("malformed state token", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state", "error_description": "Invalid state format."})
	case errors.Is(err, integration.ErrInvalidState):
		h.logger.Warn("invalid state data", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state", "error_description": "Invalid state data."})
	case errors.Is(err, integration.ErrStateMismatch):
		h.logger.Warn("state mismatch", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state", "error_description": "State does not match."})
	case errors.Is(err, integration.ErrCredentialsNotFound):
		h.logger.Warn("credentials not found", zap.String("integration", c.Param("integration")))
		c.JSON(http.StatusBadRequest, gin.H{"error": "credentials_not_found", "error_description": "No credentials found."})
	case errors.Is(err, integration.ErrMalformedCredentials):
		h.logger.Warn("malformed credentials", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_credentials", "error_description": "Invalid credentials format."})
	case errors.As(err, &exchangeErr):
		h.logger.Warn("token exchange rejected",
			zap.String("integration", exchangeErr.Provider.String()),
			zap.Int("upstream_status", exchangeErr.Status),
			zap.String("upstream_body", exchangeErr.Body),
		)
		status := exchangeErr.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": "token_exchange_failed", "error_description": "Token exchange failed: " + exchangeErr.Body})
	default:
		h.logger.Error("integration broker failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
	}
}
