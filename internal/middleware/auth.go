package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/models"
	"hamo/backend/internal/security"
)

const (
	identityKey = "identity"
	profileKey  = "profile"
)

type TokenVerifier interface {
	Verify(token string) (security.Identity, error)
}

type ProfileLoader interface {
	GetProfile(ctx context.Context, subjectID string) (models.UserProfile, error)
}

// Auth verifies the bearer token and stores the identity on the context.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "message": "missing bearer token"})
			return
		}

		identity, err := verifier.Verify(strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "message": "invalid token"})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// LoadProfile requires the caller to have initialized a profile and stores it on the context.
func LoadProfile(profiles ProfileLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		profile, err := profiles.GetProfile(c.Request.Context(), identity.SubjectID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "profile_required", "message": "call /user/init first"})
				return
			}
			code, status := apperr.Classify(err)
			c.AbortWithStatusJSON(status, gin.H{"error": code})
			return
		}

		c.Set(profileKey, profile)
		c.Next()
	}
}

// RequireRoles must run after LoadProfile.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	roleSet := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		profile, ok := CurrentProfile(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		if _, ok := roleSet[profile.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func CurrentIdentity(c *gin.Context) (security.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return security.Identity{}, false
	}
	identity, ok := v.(security.Identity)
	return identity, ok
}

func CurrentProfile(c *gin.Context) (models.UserProfile, bool) {
	v, ok := c.Get(profileKey)
	if !ok {
		return models.UserProfile{}, false
	}
	profile, ok := v.(models.UserProfile)
	return profile, ok
}
