package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tradesim/settle/internal/metrics"
	"github.com/tradesim/settle/internal/recon"
)

func (s *Server) handleReconList(c *gin.Context) {
	includeResolved := c.Query("all") == "1"
	items, err := s.recon.List(c.Request.Context(), includeResolved)
	if err != nil {
		log.Errorf("list recon items: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list reconciliation queue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) handleReconGet(c *gin.Context) {
	itemID := strings.TrimSpace(c.Param("itemID"))
	item, err := s.recon.Get(c.Request.Context(), itemID)
	if err != nil {
		if errors.Is(err, recon.ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
			return
		}
		log.Errorf("get recon item: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read reconciliation item failed"})
		return
	}
	c.JSON(http.StatusOK, item)
}

type resolveBody struct {
	Operator string `json:"operator" binding:"required"`
	Note     string `json:"note"`
}

func (s *Server) handleReconResolve(c *gin.Context) {
	itemID := strings.TrimSpace(c.Param("itemID"))
	var body resolveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operator is required"})
		return
	}
	item, err := s.recon.Resolve(c.Request.Context(), itemID, body.Operator, body.Note)
	if err != nil {
		if errors.Is(err, recon.ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
			return
		}
		log.Errorf("resolve recon item: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve reconciliation item failed"})
		return
	}
	metrics.ReconResolved.Add(1)
	c.JSON(http.StatusOK, item)
}
