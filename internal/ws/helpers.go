package ws

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lostfound-chat/internal/middleware"
)

func newConnID() string {
	return uuid.NewString()
}

// tokenFromRequest reads the bearer token from the Authorization header or,
// for browsers that cannot set headers on upgrade, the token query parameter.
func tokenFromRequest(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		return middleware.BearerToken(header)
	}
	token := c.Query("token")
	return token, token != ""
}

func feedKey(kind, resourceID string) string {
	return kind + ":" + resourceID
}
