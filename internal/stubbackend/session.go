package stubbackend

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims is the JWT payload carried by the session cookie.
type sessionClaims struct {
	jwt.RegisteredClaims
	UserID    string   `json:"user_id"`
	Email     string   `json:"email"`
	Display   string   `json:"display"`
	AvatarURL string   `json:"avatar_url"`
	Roles     []string `json:"roles"`
}

func (server *Server) issueSessionToken(request loginRequest, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    server.cfg.SessionIssuer,
			Subject:   request.UserID,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:    request.UserID,
		Email:     request.Email,
		Display:   request.Display,
		AvatarURL: request.AvatarURL,
		Roles:     request.Roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(server.cfg.SessionSigningKey))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// sessionMiddleware validates the session cookie and stores the claims
// in the request context. Requests without a valid cookie get a 401
// error envelope, the signal the client treats as "not logged in".
func (server *Server) sessionMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		cookie, err := ctx.Cookie(server.cfg.SessionCookieName)
		if err != nil || cookie == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		claims := &sessionClaims{}
		token, err := jwt.ParseWithClaims(cookie, claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(server.cfg.SessionSigningKey), nil
		}, jwt.WithIssuer(server.cfg.SessionIssuer), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session"))
			return
		}
		ctx.Set(claimsContextKey, claims)
		ctx.Next()
	}
}

func getClaims(ctx *gin.Context) *sessionClaims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionClaims)
	return claims
}
