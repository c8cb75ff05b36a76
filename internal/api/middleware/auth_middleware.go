package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"parking_backend/internal/domain"
	"parking_backend/internal/service"
)

const (
	AuthorizationHeaderKey  = "Authorization"
	AuthorizationTypeBearer = "Bearer"
	UserIDKey               = "userID"
	UserRoleKey             = "userRole"
	UserEmailKey            = "userEmail"
)

// TokenVerifier is satisfied by every service.AuthProvider.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*service.Identity, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate verifies the bearer token and stores the caller in the gin context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeaderKey)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization header"})
			return
		}

		fields := strings.Fields(authHeader)
		if len(fields) < 2 || !strings.EqualFold(fields[0], AuthorizationTypeBearer) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		identity, err := m.verifier.VerifyToken(c.Request.Context(), fields[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "details": err.Error()})
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Set(UserRoleKey, string(identity.Role))
		c.Set(UserEmailKey, identity.Email)
		c.Next()
	}
}

// AuthorizeRole only lets callers with one of requiredRoles through.
func (m *AuthMiddleware) AuthorizeRole(requiredRoles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString(UserRoleKey)
		if userRole == "" {
			log.Printf("AuthorizeRole: no user role in context (Authenticate must run first)")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden (missing role)"})
			return
		}

		for _, reqRole := range requiredRoles {
			if userRole == string(reqRole) {
				c.Next()
				return
			}
		}
		log.Printf("AuthorizeRole: role '%s' denied (requires %v)", userRole, requiredRoles)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden (insufficient role)"})
	}
}

// CurrentUserID returns the authenticated caller's ID.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func IsAdmin(c *gin.Context) bool {
	return c.GetString(UserRoleKey) == string(domain.RoleAdmin)
}
