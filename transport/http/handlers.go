package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dfortune/fortuna/core"
	"github.com/dfortune/fortuna/dashboard"
	"github.com/dfortune/fortuna/service"
)

// Handler carries the HTTP endpoints of the auth and dashboard surface.
type Handler struct {
	auth    *service.AuthService
	dash    *dashboard.Service
	cookies *CookieWriter
	log     *zap.Logger
}

func NewHandler(auth *service.AuthService, dash *dashboard.Service, cookies *CookieWriter, log *zap.Logger) *Handler {
	return &Handler{auth: auth, dash: dash, cookies: cookies, log: log}
}

type nonceRequest struct {
	Address string `json:"address"`
}

// Nonce issues a fresh signing challenge for the given wallet address.
// Malformed input is reported precisely; only store failures map to 500.
func (h *Handler) Nonce(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body is empty"})
		return
	}

	var req nonceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if req.Address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}

	nonce, err := h.auth.Challenges().Issue(c.Request.Context(), req.Address)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
			return
		}
		h.log.Error("failed to issue challenge", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate nonce"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"nonce": nonce})
}

type loginRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
}

// Login verifies the signed challenge and establishes a session cookie. Every
// denial is the same generic 401 so callers cannot probe which check failed.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	creds := service.Credentials{
		Address:   req.Address,
		Signature: req.Signature,
		Nonce:     req.Nonce,
	}

	identity, token, expiresAt, err := h.auth.Login(c.Request.Context(), creds)
	if err != nil {
		h.log.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	h.cookies.Write(c, token, expiresAt)
	c.JSON(http.StatusOK, gin.H{"user": identity})
}

// Logout ends the current session. It requires one: without a valid session
// cookie there is nothing to log out of.
func (h *Handler) Logout(c *gin.Context) {
	session, ok := sessionFromRequest(c, h.auth, h.cookies)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	h.auth.Logout(c.Request.Context(), session.Address)
	h.cookies.Clear(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me returns the identity bound to the current session.
func (h *Handler) Me(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": identity})
}

// Dashboard assembles the lottery dashboard payload for a wallet address.
func (h *Handler) Dashboard(c *gin.Context) {
	if h.dash == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dashboard is not configured"})
		return
	}

	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address parameter is required"})
		return
	}

	data, err := h.dash.ForAddress(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "address parameter is required"})
			return
		}
		h.log.Error("failed to build dashboard data", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch dashboard data"})
		return
	}

	c.JSON(http.StatusOK, data)
}
