package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking_backend/internal/domain"
	"parking_backend/internal/service"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(us *service.UserService) *UserHandler {
	return &UserHandler{userService: us}
}

// GET /users/:id
func (h *UserHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !canSee(c, id) {
		return
	}
	user, err := h.userService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "User not found")
		return
	}
	c.JSON(http.StatusOK, user)
}

// GET /users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.userService.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "Could not list users")
		return
	}
	c.JSON(http.StatusOK, users)
}

// DELETE /users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.userService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, "Could not delete user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted", "id": id})
}

// PUT /users/:id/preferences
func (h *UserHandler) UpdatePreferences(c *gin.Context) {
	id := c.Param("id")
	if !canSee(c, id) {
		return
	}
	var dto domain.UpdatePreferencesDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.userService.UpdatePreferences(c.Request.Context(), id, dto)
	if err != nil {
		respondError(c, err, "Could not update preferences")
		return
	}
	c.JSON(http.StatusOK, user.Preferences)
}

// PUT /users/:id
func (h *UserHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if !canSee(c, id) {
		return
	}
	var dto domain.UpdateUserDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.userService.Update(c.Request.Context(), id, dto)
	if err != nil {
		respondError(c, err, "Could not update user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// GET /users/:id/vehicles
func (h *UserHandler) Vehicles(c *gin.Context) {
	id := c.Param("id")
	if !canSee(c, id) {
		return
	}
	vehicles, err := h.userService.Vehicles(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Could not list vehicles")
		return
	}
	c.JSON(http.StatusOK, vehicles)
}

// POST /users/:id/vehicles
func (h *UserHandler) AddVehicle(c *gin.Context) {
	id := c.Param("id")
	if !canSee(c, id) {
		return
	}
	var dto domain.AddVehicleDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err)
		return
	}
	vehicle, err := h.userService.AddVehicle(c.Request.Context(), id, dto)
	if err != nil {
		respondError(c, err, "Could not add vehicle")
		return
	}
	c.JSON(http.StatusCreated, vehicle)
}

// GET /users/:id/parking-history
func (h *UserHandler) History(c *gin.Context) {
	id := c.Param("id")
	if !canSee(c, id) {
		return
	}
	sessions, err := h.userService.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Could not load parking history")
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GET /users/:id/profile
func (h *UserHandler) Profile(c *gin.Context) {
	id := c.Param("id")
	if !canSee(c, id) {
		return
	}
	profile, err := h.userService.Profile(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Could not load profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}
