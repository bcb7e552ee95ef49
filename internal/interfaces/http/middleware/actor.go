package middleware

import (
	"net/http"

	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/farmerp/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ActorIDHeader names the operator on whose behalf a request runs. An
// upstream gateway is expected to set it after authentication.
const ActorIDHeader = "X-Actor-ID"

// ActorIDKey is the gin context key holding the parsed actor id
const ActorIDKey = "actor_id"

// Actor parses ActorIDHeader into the request context so fixes and
// rollbacks are attributed. A malformed id is rejected; a missing one is
// left to the service's default actor.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(ActorIDHeader)
		if raw == "" {
			c.Next()
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeInvalidInput, ActorIDHeader+" must be a UUID", GetRequestID(c)))
			return
		}
		c.Set(ActorIDKey, id.String())
		c.Request = c.Request.WithContext(shared.WithActorID(c.Request.Context(), id))
		c.Next()
	}
}

// GetActorID returns the actor id set by Actor, or ""
func GetActorID(c *gin.Context) string {
	return c.GetString(ActorIDKey)
}
