package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"todocall-platform/internal/audit"
	"todocall-platform/internal/auth"
	"todocall-platform/internal/bans"
	"todocall-platform/internal/call"
	"todocall-platform/internal/todos"
	"todocall-platform/internal/users"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth  *auth.Manager
	Users *users.Service
	Todos *todos.Service
	Bans  *bans.Service
	Calls *call.Coordinator

	// Audit is optional; nil disables the extra ban audit records.
	Audit *audit.Service
}

// writeError translates service sentinels to HTTP statuses. Unknown errors
// become a generic 500 so internals never leak to clients.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, todos.ErrNotFound),
		errors.Is(err, call.ErrTodoNotFound),
		errors.Is(err, users.ErrNotFound),
		errors.Is(err, bans.ErrUserNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, todos.ErrForbidden),
		errors.Is(err, call.ErrForbidden),
		errors.Is(err, call.ErrNotRecipient):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})

	case errors.Is(err, users.ErrUsernameTaken):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})

	case call.IsInvalidState(err),
		call.IsValidationError(err),
		errors.Is(err, call.ErrPayloadRequired),
		errors.Is(err, todos.ErrTextRequired),
		errors.Is(err, todos.ErrSelfShare),
		errors.Is(err, todos.ErrSharedUserNotFound),
		errors.Is(err, todos.ErrShareBanned),
		errors.Is(err, todos.ErrCompletedLocked),
		errors.Is(err, todos.ErrInvalidLeadTime),
		errors.Is(err, users.ErrInvalidUsername),
		errors.Is(err, bans.ErrSelfBan),
		errors.Is(err, bans.ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

/* ===================== AUTH ===================== */

type registerRequest struct {
	Username string `json:"username"`
}

// Register creates an account and issues a token pair.
//
// NOTE: the passkey ceremony runs in an external authenticator service; by
// the time this endpoint is called the username is already attested.
func (h Handlers) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	u, err := h.Users.Register(c.Request.Context(), req.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), u.ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user":          u,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func (h Handlers) Login(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	u, err := h.Users.Lookup(c.Request.Context(), req.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), u.ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":          u,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

/* ===================== TODOS ===================== */

type createTodoRequest struct {
	Text                  string     `json:"text"`
	Description           string     `json:"description"`
	DueAt                 *time.Time `json:"dueAt"`
	SharedWithUserID      *string    `json:"sharedWithUserId"`
	StartMeetingBeforeMin int        `json:"startMeetingBeforeMin"`
}

func (h Handlers) ListTodos(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	listing, err := h.Todos.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	owned := listing.Owned
	if owned == nil {
		owned = []todos.Todo{}
	}
	shared := listing.SharedWithMe
	if shared == nil {
		shared = []todos.Todo{}
	}
	// currentUserId lets clients decide which side of a shared todo (and
	// therefore which call role) they are without decoding the token.
	c.JSON(http.StatusOK, gin.H{
		"currentUserId": userID,
		"owned":         owned,
		"sharedWithMe":  shared,
	})
}

func (h Handlers) CreateTodo(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var req createTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	t, err := h.Todos.Create(c.Request.Context(), userID, todos.CreateRequest{
		Text:                  req.Text,
		Description:           req.Description,
		DueAt:                 req.DueAt,
		SharedWithUserID:      req.SharedWithUserID,
		StartMeetingBeforeMin: req.StartMeetingBeforeMin,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// UpdateTodo applies a partial update. The body is decoded field-by-field so
// "dueAt": null (clear the due time) is distinguishable from an absent key.
func (h Handlers) UpdateTodo(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	patch, err := buildPatch(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.Todos.Update(c.Request.Context(), userID, c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func buildPatch(raw map[string]json.RawMessage) (todos.Patch, error) {
	var patch todos.Patch

	if v, ok := raw["text"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return todos.Patch{}, errors.New("text must be a string")
		}
		patch.Text = &s
	}
	if v, ok := raw["description"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return todos.Patch{}, errors.New("description must be a string")
		}
		patch.Description = &s
	}
	if v, ok := raw["completed"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return todos.Patch{}, errors.New("completed must be a boolean")
		}
		patch.Completed = &b
	}
	if v, ok := raw["dueAt"]; ok {
		patch.DueAtSet = true
		if string(v) != "null" {
			var t time.Time
			if err := json.Unmarshal(v, &t); err != nil {
				return todos.Patch{}, errors.New("dueAt must be an RFC3339 timestamp or null")
			}
			patch.DueAt = &t
		}
	}
	if v, ok := raw["sharedWithUserId"]; ok {
		patch.SharedWithUserIDSet = true
		if string(v) != "null" {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return todos.Patch{}, errors.New("sharedWithUserId must be a string or null")
			}
			patch.SharedWithUserID = &s
		}
	}
	if v, ok := raw["startMeetingBeforeMin"]; ok {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return todos.Patch{}, errors.New("startMeetingBeforeMin must be an integer")
		}
		patch.StartMeetingBeforeMin = &n
	}
	return patch, nil
}

func (h Handlers) DeleteTodo(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	if err := h.Todos.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RemoveShared lets the shared user leave a todo shared with them.
func (h Handlers) RemoveShared(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	t, err := h.Todos.RemoveShared(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

/* ===================== SHARE BANS ===================== */

type createBanRequest struct {
	BlockedUserID string `json:"blockedUserId"`
}

func (h Handlers) ListBans(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	list, err := h.Bans.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []bans.ShareBan{}
	}
	c.JSON(http.StatusOK, gin.H{"bans": list})
}

func (h Handlers) CreateBan(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var req createBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ban, err := h.Bans.Ban(c.Request.Context(), userID, req.BlockedUserID)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Audit != nil {
		_ = h.Audit.BanCreated(c.Request.Context(), userID, ban.BlockedUserID)
	}
	c.JSON(http.StatusCreated, ban)
}

func (h Handlers) DeleteBan(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var req createBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	blockedUserID := req.BlockedUserID
	if err := h.Bans.Unban(c.Request.Context(), userID, blockedUserID); err != nil {
		writeError(c, err)
		return
	}
	if h.Audit != nil {
		_ = h.Audit.BanRemoved(c.Request.Context(), userID, blockedUserID)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

/* ===================== CALLS ===================== */

type relaySignalRequest struct {
	Payload json.RawMessage `json:"payload"`
}

type endCallRequest struct {
	MarkDone        bool       `json:"markDone"`
	RescheduleDueAt *time.Time `json:"rescheduleDueAt"`
}

func (h Handlers) StartCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	res, err := h.Calls.Start(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) PollCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	res, err := h.Calls.Poll(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) RelaySignal(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var req relaySignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Calls.RelaySignal(c.Request.Context(), c.Param("id"), userID, req.Payload); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h Handlers) EndCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var req endCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	t, err := h.Calls.End(c.Request.Context(), c.Param("id"), userID, call.EndRequest{
		MarkDone:        req.MarkDone,
		RescheduleDueAt: req.RescheduleDueAt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"todo": gin.H{
			"id":        t.ID,
			"completed": t.Completed,
			"dueAt":     t.DueAt,
		},
	})
}
