package middleware

import (
	"net/http"
	"os"
	"strings"

	"fieldops/internal/authz"
	"fieldops/internal/model"
	"fieldops/internal/repository"
	"fieldops/internal/service"
	"fieldops/pkg/apperror"
	"fieldops/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func GetJWTSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		if os.Getenv("GIN_MODE") == "release" {
			panic("FATAL: JWT_SECRET environment variable is required in production mode")
		}
		secret = "default_super_secret_key" // Development fallback only. DO NOT use in production.
	}
	return []byte(secret)
}

// SetTokenCookie sets the access token as an HttpOnly cookie
func SetTokenCookie(c *gin.Context, accessToken string) {
	sameSite := http.SameSiteLaxMode
	secure := false
	if os.Getenv("GIN_MODE") == "release" {
		sameSite = http.SameSiteNoneMode
		secure = true
	}

	c.SetSameSite(sameSite)
	c.SetCookie("access_token", accessToken, 3600*24, "/", "", secure, true)
}

// ClearTokenCookie removes the access token cookie
func ClearTokenCookie(c *gin.Context) {
	sameSite := http.SameSiteLaxMode
	secure := false
	if os.Getenv("GIN_MODE") == "release" {
		sameSite = http.SameSiteNoneMode
		secure = true
	}

	c.SetSameSite(sameSite)
	c.SetCookie("access_token", "", -1, "/", "", secure, true)
}

// AuthMiddleware authenticates requests and enforces permissions. It is
// constructed once at startup with its dependencies; there is no
// package-level state.
type AuthMiddleware struct {
	secret   []byte
	gate     *authz.Gate
	sessions service.ImpersonationService
	users    repository.UserRepository
}

func NewAuthMiddleware(secret []byte, gate *authz.Gate, sessions service.ImpersonationService, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{
		secret:   secret,
		gate:     gate,
		sessions: sessions,
		users:    users,
	}
}

// IdentityFrom returns the request identity, nil when unauthenticated.
func IdentityFrom(c *gin.Context) *authz.Identity {
	return authz.IdentityFromContext(c.Request.Context())
}

// Authenticate validates the JWT and attaches the immutable per-request
// Identity. Requests carrying an impersonation claim are checked against the
// session's hard and idle limits and re-attributed to the target user and
// tenant. Activity is recorded later, by RequirePermission, once the request
// has actually been authorized.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie("access_token")
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				response.AbortWithError(c, apperror.AuthenticationRequired("authorization is missing"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.AbortWithError(c, apperror.AuthenticationRequired("invalid authorization format, expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			response.AbortWithError(c, apperror.AuthenticationRequired("invalid token"))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.AbortWithError(c, apperror.AuthenticationRequired("invalid token claims"))
			return
		}

		sub, _ := claims["sub"].(string)
		userID, err := uuid.Parse(sub)
		if err != nil {
			response.AbortWithError(c, apperror.AuthenticationRequired("invalid token subject"))
			return
		}

		var ident *authz.Identity
		if impClaim, present := claims["imp"].(string); present {
			ident, err = m.impersonatedIdentity(c, userID, impClaim)
			if err != nil {
				response.AbortWithError(c, err)
				return
			}
		} else {
			companyClaim, _ := claims["company"].(string)
			companyID, parseErr := uuid.Parse(companyClaim)
			if parseErr != nil {
				response.AbortWithError(c, apperror.AuthenticationRequired("invalid token company"))
				return
			}
			role, _ := claims["role"].(string)
			ident = &authz.Identity{
				UserID:     userID,
				CompanyID:  companyID,
				CoarseRole: role,
			}
		}

		c.Request = c.Request.WithContext(authz.WithIdentity(c.Request.Context(), ident))
		c.Next()
	}
}

// impersonatedIdentity enforces expiry and builds the identity of the target
// user. It deliberately does not record activity.
func (m *AuthMiddleware) impersonatedIdentity(c *gin.Context, operatorID uuid.UUID, impClaim string) (*authz.Identity, error) {
	sessionID, err := uuid.Parse(impClaim)
	if err != nil {
		return nil, apperror.AuthenticationRequired("invalid impersonation claim")
	}

	session, err := m.sessions.Validate(c.Request.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	if session.OperatorID != operatorID {
		return nil, apperror.AuthenticationRequired("impersonation claim mismatch")
	}

	target, err := m.users.GetByID(c.Request.Context(), session.TargetUserID)
	if err != nil {
		return nil, apperror.AuthenticationRequired("impersonation target no longer exists")
	}

	return &authz.Identity{
		UserID:     target.ID,
		CompanyID:  target.CompanyID,
		CoarseRole: target.Role,
		Impersonation: &authz.ImpersonationClaim{
			SessionID:  session.ID,
			OperatorID: session.OperatorID,
		},
	}, nil
}

// RequirePermission wraps a protected operation behind the gate. This is the
// only path by which protected handlers run.
func (m *AuthMiddleware) RequirePermission(permissionKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := IdentityFrom(c)
		if err := m.gate.Check(c.Request.Context(), ident, permissionKey); err != nil {
			response.AbortWithError(c, err)
			return
		}
		// Only now does the request count as session activity; a denied
		// request must not refresh the idle window.
		if ident.Impersonated() {
			if _, err := m.sessions.Touch(c.Request.Context(), ident.Impersonation.SessionID); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		c.Next()
	}
}

// RequireOperator admits only a platform operator acting as themselves.
func (m *AuthMiddleware) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := IdentityFrom(c)
		if ident == nil {
			response.AbortWithError(c, apperror.AuthenticationRequired("authentication required"))
			return
		}
		if ident.CoarseRole != model.CoarseRolePlatformOperator || ident.Impersonated() {
			response.AbortWithError(c, apperror.New(apperror.KindPermissionDenied, "platform operator role required"))
			return
		}
		c.Next()
	}
}
