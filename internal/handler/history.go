package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"kit-sync/internal/model"
	"kit-sync/internal/store"
)

type HistoryHandler struct {
	Store *store.Store
}

func (h *HistoryHandler) KitMessages(c *gin.Context) {
	h.messages(c, model.ScopeKit)
}

func (h *HistoryHandler) ChannelMessages(c *gin.Context) {
	h.messages(c, model.ScopeChannel)
}

func (h *HistoryHandler) messages(c *gin.Context, kind model.ScopeKind) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return
	}

	after := int64(0)
	if raw := c.Query("after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor format"})
			return
		}
		after = v
	}

	limit := store.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor format"})
			return
		}
		limit = v
	}

	msgs, err := h.Store.ListMessages(model.Scope{Kind: kind, ID: id}, after, limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
