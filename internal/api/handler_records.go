package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"loomtrack-backend/internal/model"
	"loomtrack-backend/internal/parse"
	"loomtrack-backend/internal/sync"
)

// recordRequest is the mutation payload for a single shift observation.
// The id comes from the URL (or is assigned on create), never the body.
type recordRequest struct {
	Date      string  `json:"date" binding:"required"`
	Shift     string  `json:"shift" binding:"required"`
	MachineNo string  `json:"machineNo" binding:"required"`
	Stops     int     `json:"stops"`
	WeftMeter float64 `json:"weftMeter"`
	Total     string  `json:"total" binding:"required"`
	Run       string  `json:"run" binding:"required"`
}

// toRecord validates the payload at the API boundary. Everything past this
// point trusts its record values.
func (r recordRequest) toRecord() (model.Record, error) {
	if _, err := time.Parse("2006-01-02", r.Date); err != nil {
		return model.Record{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", r.Date)
	}
	shift := model.Shift(r.Shift)
	if !shift.Valid() {
		return model.Record{}, fmt.Errorf("invalid shift %q, want %q or %q", r.Shift, model.ShiftDay, model.ShiftNight)
	}
	if r.Stops < 0 {
		return model.Record{}, errors.New("stops must not be negative")
	}
	if r.WeftMeter < 0 {
		return model.Record{}, errors.New("weftMeter must not be negative")
	}
	if _, err := parse.Span(r.Total); err != nil {
		return model.Record{}, fmt.Errorf("total: %w", err)
	}
	if _, err := parse.Span(r.Run); err != nil {
		return model.Record{}, fmt.Errorf("run: %w", err)
	}

	return model.Record{
		Date:      r.Date,
		Shift:     shift,
		MachineNo: r.MachineNo,
		Stops:     r.Stops,
		WeftMeter: r.WeftMeter,
		Total:     r.Total,
		Run:       r.Run,
	}, nil
}

// GetRecords handles the GET /api/records request.
func (h *Handler) GetRecords(c *gin.Context) {
	c.JSON(http.StatusOK, h.router.Records())
}

// PostRecord handles the POST /api/records request. The record is stored
// locally right away; remote propagation is the sync engine's problem and
// never fails this request.
func (h *Handler) PostRecord(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := req.toRecord()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, h.router.AddRecord(rec))
}

// PutRecord handles the PUT /api/records/{id} request.
func (h *Handler) PutRecord(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := req.toRecord()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec.ID = c.Param("id")

	if err := h.router.UpdateRecord(rec); err != nil {
		if errors.Is(err, sync.ErrUnknownRecord) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// DeleteRecord handles the DELETE /api/records/{id} request. Deleting an
// unknown id succeeds; the outcome is the same either way.
func (h *Handler) DeleteRecord(c *gin.Context) {
	h.router.DeleteRecord(c.Param("id"))
	c.Status(http.StatusNoContent)
}
