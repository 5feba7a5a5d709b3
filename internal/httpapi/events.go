package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"magazine/internal/event"
)

func (h *handler) listEvents(c *gin.Context) {
	events, err := h.Events.List(c.Request.Context(), c.Query("faculty"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

func (h *handler) createEvent(c *gin.Context) {
	var in event.Input
	if !bindJSON(c, &in) {
		return
	}
	e, err := h.Events.Create(c.Request.Context(), caller(c).Subject, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Event created successfully!", "data": e})
}

func (h *handler) getEvent(c *gin.Context) {
	e, err := h.Events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": e})
}

func (h *handler) updateEvent(c *gin.Context) {
	var in event.Input
	if !bindJSON(c, &in) {
		return
	}
	who := caller(c)
	e, err := h.Events.Update(c.Request.Context(), who.Subject, who.Role, c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Event updated successfully!", "data": e})
}

func (h *handler) deleteEvent(c *gin.Context) {
	who := caller(c)
	if err := h.Events.Delete(c.Request.Context(), who.Subject, who.Role, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Event deleted successfully!"})
}

func (h *handler) eventDetail(c *gin.Context) {
	d, err := h.Events.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": d})
}

func (h *handler) searchEvents(c *gin.Context) {
	var req nameRequest
	if !bindJSON(c, &req) {
		return
	}
	events, err := h.Events.Search(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

// downloadEvent exports the files of accepted contributions only.
func (h *handler) downloadEvent(c *gin.Context) {
	id := c.Param("id")
	paths, err := h.Contributions.ArchivePaths(c.Request.Context(), id, true)
	if err != nil {
		respondError(c, err)
		return
	}
	h.export(c, id, paths)
}
