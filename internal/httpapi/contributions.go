package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"magazine/internal/contribution"
	"magazine/internal/model"
)

func (h *handler) submitContribution(c *gin.Context) {
	form, ok := h.parseForm(c, contribution.MaxFiles)
	if !ok {
		return
	}
	content, _ := formValue(form, "content")
	eventID, _ := formValue(form, "event")

	uploads, closeAll, err := formUploads(form, "documents")
	if err != nil {
		respondError(c, err)
		return
	}
	defer closeAll()

	created, err := h.Contributions.Submit(c.Request.Context(), caller(c).Subject, strings.TrimSpace(eventID), content, uploads)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Contribution submitted successfully!", "data": created})
}

func (h *handler) listContributions(c *gin.Context) {
	listing, err := h.Contributions.ListAccepted(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if listing.Empty() {
		c.JSON(http.StatusOK, gin.H{"message": "No contributions found!", "data": []model.ContributionView{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": listing.Items})
}

func (h *handler) pendingContributions(c *gin.Context) {
	pending, err := h.Contributions.ListPending(c.Request.Context(), caller(c).Subject)
	if err != nil {
		respondError(c, err)
		return
	}
	if pending == nil {
		pending = []model.Contribution{}
	}
	c.JSON(http.StatusOK, gin.H{"data": pending})
}

func (h *handler) acceptContribution(c *gin.Context) {
	accepted, err := h.Contributions.Accept(c.Request.Context(), c.Param("id"), caller(c).Subject)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contribution accepted!", "data": accepted})
}

func (h *handler) rejectContribution(c *gin.Context) {
	if err := h.Contributions.Reject(c.Request.Context(), c.Param("id"), caller(c).Subject); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contribution rejected!"})
}

func (h *handler) updateContribution(c *gin.Context) {
	form, ok := h.parseForm(c, contribution.MaxFiles)
	if !ok {
		return
	}
	content, _ := formValue(form, "content")

	uploads, closeAll, err := formUploads(form, "documents")
	if err != nil {
		respondError(c, err)
		return
	}
	defer closeAll()

	updated, err := h.Contributions.Update(c.Request.Context(), c.Param("id"), caller(c).Subject, content, uploads)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contribution updated successfully!", "data": updated})
}

func (h *handler) deleteContribution(c *gin.Context) {
	who := caller(c)
	if err := h.Contributions.Delete(c.Request.Context(), c.Param("id"), who.Subject, who.Role); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contribution deleted successfully!"})
}

func (h *handler) reactContribution(counter model.Counter, delta int) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := h.Contributions.React(c.Request.Context(), c.Param("id"), counter, delta)
		if err != nil {
			respondError(c, err)
			return
		}
		col, _ := counter.Column()
		c.JSON(http.StatusOK, gin.H{col: n})
	}
}

// downloadContributions exports every file referenced by the event's
// contributions, pending ones included.
func (h *handler) downloadContributions(c *gin.Context) {
	id := c.Param("id")
	paths, err := h.Contributions.ArchivePaths(c.Request.Context(), id, false)
	if err != nil {
		respondError(c, err)
		return
	}
	h.export(c, id, paths)
}
