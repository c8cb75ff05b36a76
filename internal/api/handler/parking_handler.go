package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking_backend/internal/api/middleware"
	"parking_backend/internal/domain"
	"parking_backend/internal/service"
)

type ParkingHandler struct {
	parkingService *service.ParkingService
}

func NewParkingHandler(ps *service.ParkingService) *ParkingHandler {
	return &ParkingHandler{parkingService: ps}
}

// actingUser resolves the user a transition is for. Only admins may act for someone else.
func actingUser(c *gin.Context, requested string) (string, bool) {
	caller := middleware.CurrentUserID(c)
	if requested == "" || requested == caller {
		return caller, true
	}
	if middleware.IsAdmin(c) {
		return requested, true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "Cannot act on behalf of another user"})
	return "", false
}

// GET /parking
func (h *ParkingHandler) ListSpots(c *gin.Context) {
	var filter domain.SpotFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}
	spots, err := h.parkingService.ListSpots(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Could not list parking spots")
		return
	}
	c.JSON(http.StatusOK, spots)
}

// GET /parking/available
func (h *ParkingHandler) ListAvailable(c *gin.Context) {
	state := domain.SpotAvailable
	spots, err := h.parkingService.ListSpots(c.Request.Context(), domain.SpotFilter{State: &state})
	if err != nil {
		respondError(c, err, "Could not list available spots")
		return
	}
	c.JSON(http.StatusOK, spots)
}

// GET /parking/availability
func (h *ParkingHandler) Availability(c *gin.Context) {
	counts, err := h.parkingService.Availability(c.Request.Context())
	if err != nil {
		respondError(c, err, "Could not count spots")
		return
	}
	c.JSON(http.StatusOK, counts)
}

// GET /parking/:id
func (h *ParkingHandler) GetSpot(c *gin.Context) {
	spot, err := h.parkingService.GetSpot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Parking spot not found")
		return
	}
	c.JSON(http.StatusOK, spot)
}

// POST /parking
func (h *ParkingHandler) CreateSpot(c *gin.Context) {
	var dto domain.ParkingSpotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err)
		return
	}
	spot, err := h.parkingService.CreateSpot(c.Request.Context(), dto)
	if err != nil {
		respondError(c, err, "Could not create parking spot")
		return
	}
	c.JSON(http.StatusCreated, spot)
}

// POST /parking/test-spots
func (h *ParkingHandler) CreateTestSpots(c *gin.Context) {
	spots, err := h.parkingService.CreateTestSpots(c.Request.Context())
	if err != nil {
		respondError(c, err, "Could not create test spots")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"created": len(spots), "spots": spots})
}

// DELETE /parking/:id
func (h *ParkingHandler) RemoveSpot(c *gin.Context) {
	if err := h.parkingService.RemoveSpot(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "Could not remove parking spot")
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /parking/reserve
func (h *ParkingHandler) Reserve(c *gin.Context) {
	var dto domain.ReserveSpotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err)
		return
	}
	userID, ok := actingUser(c, dto.UserID)
	if !ok {
		return
	}
	spot, err := h.parkingService.Reserve(c.Request.Context(), dto.SpotID, userID)
	if err != nil {
		respondError(c, err, "Could not reserve parking spot")
		return
	}
	c.JSON(http.StatusOK, spot)
}

// POST /parking/entry
func (h *ParkingHandler) RegisterEntry(c *gin.Context) {
	var dto domain.RegisterEntryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err)
		return
	}
	userID, ok := actingUser(c, dto.UserID)
	if !ok {
		return
	}
	session, err := h.parkingService.RegisterEntry(c.Request.Context(), dto.SpotID, userID, dto.PlateNumber)
	if err != nil {
		respondError(c, err, "Could not register entry")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"history_id": session.ID, "session": session})
}

// POST /parking/exit
func (h *ParkingHandler) RegisterExit(c *gin.Context) {
	var dto domain.RegisterExitDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.parkingService.RegisterExit(c.Request.Context(), dto.SpotID, dto.PaymentMethod)
	if err != nil {
		respondError(c, err, "Could not register exit")
		return
	}
	c.JSON(http.StatusOK, result)
}

// GET /parking/history?userId=&plateNumber=&status=&spotId=
// Non-admins only see their own sessions.
func (h *ParkingHandler) History(c *gin.Context) {
	var filter domain.SessionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}
	if !middleware.IsAdmin(c) {
		caller := middleware.CurrentUserID(c)
		filter.UserID = &caller
	}
	sessions, err := h.parkingService.QueryHistory(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Could not query parking history")
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GET /parking/history/:id
func (h *ParkingHandler) GetHistory(c *gin.Context) {
	session, err := h.parkingService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Parking history not found")
		return
	}
	if !middleware.IsAdmin(c) && session.UserID != middleware.CurrentUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your parking history"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// GET /parking/stats?startDate=&endDate=
func (h *ParkingHandler) Stats(c *gin.Context) {
	var r domain.DateRange
	if err := c.ShouldBindQuery(&r); err != nil {
		badRequest(c, err)
		return
	}
	stats, err := h.parkingService.Stats(c.Request.Context(), r)
	if err != nil {
		respondError(c, err, "Could not compute parking stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
