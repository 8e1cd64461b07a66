package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"syncup-service/internal/repositories"
)

// UserHandler exposes the contact directory.
type UserHandler struct {
	userRepo repositories.UserRepository
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(userRepo repositories.UserRepository) *UserHandler {
	return &UserHandler{userRepo: userRepo}
}

// ListUsers returns every known user except the caller, with current
// online status.
func (h *UserHandler) ListUsers(c *gin.Context) {
	userID := userIDFromContext(c)

	users, err := h.userRepo.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}

	contacts := users[:0]
	for _, u := range users {
		if u.ID != userID {
			contacts = append(contacts, u)
		}
	}

	c.JSON(http.StatusOK, gin.H{"users": contacts})
}
