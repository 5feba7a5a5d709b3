package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"magazine/internal/model"
)

func (h *handler) createComment(c *gin.Context) {
	var req struct {
		ContributionID string `json:"contribution_id"`
		Contribution   string `json:"contribution"`
		Content        string `json:"content"`
	}
	if !bindJSON(c, &req) {
		return
	}
	target := req.ContributionID
	if target == "" {
		target = req.Contribution
	}
	created, err := h.Comments.Create(c.Request.Context(), caller(c).Subject, target, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Comment created successfully!", "data": created})
}

func (h *handler) listComments(c *gin.Context) {
	comments, err := h.Comments.List(c.Request.Context(), c.Param("contributionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if comments == nil {
		comments = []model.Comment{}
	}
	c.JSON(http.StatusOK, gin.H{"data": comments})
}

func (h *handler) reactComment(counter model.Counter) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := h.Comments.React(c.Request.Context(), c.Param("commentId"), counter)
		if err != nil {
			respondError(c, err)
			return
		}
		col, _ := counter.Column()
		c.JSON(http.StatusOK, gin.H{col: n})
	}
}

func (h *handler) deleteComment(c *gin.Context) {
	if err := h.Comments.Delete(c.Request.Context(), c.Param("id"), caller(c).Subject); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted successfully!"})
}

func (h *handler) report(c *gin.Context) {
	rep, err := h.Reports.Build(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rep})
}
