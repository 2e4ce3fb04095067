package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	contextKeyUserID    = "auth_user_id"
	bearerPrefix        = "Bearer "
	authorizationHeader = "Authorization"
)

// authMiddleware verifies the bearer token and stores the caller's user id
// on the request context. Token issuance lives outside this service; the
// middleware only needs the shared signing key.
func authMiddleware(signingKey []byte, issuer string) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	return func(ctx *gin.Context) {
		header := ctx.GetHeader(authorizationHeader)
		if !strings.HasPrefix(header, bearerPrefix) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing bearer token"))
			return
		}
		raw := strings.TrimPrefix(header, bearerPrefix)
		token, err := parser.Parse(raw, func(token *jwt.Token) (interface{}, error) {
			return signingKey, nil
		})
		if err != nil || !token.Valid {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid token"))
			return
		}
		subject, err := token.Claims.GetSubject()
		if err != nil || strings.TrimSpace(subject) == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "token has no subject"))
			return
		}
		ctx.Set(contextKeyUserID, subject)
		ctx.Next()
	}
}

func callerUserID(ctx *gin.Context) string {
	value, ok := ctx.Get(contextKeyUserID)
	if !ok {
		return ""
	}
	userID, _ := value.(string)
	return userID
}
