package middleware

import (
	"go-datasync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware validates operator tokens and injects the claims into context
func AuthMiddleware(validator *utils.TokenValidator, skipAuth bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if skipAuth {
			// Inject dummy context for dev
			c.Locals(utils.OperatorClaimsKey, &utils.OperatorClaims{Operator: "dev-operator"})
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header required",
			})
		}

		// Extract token from "Bearer <token>"
		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		claims, err := validator.ValidateToken(authHeader[7:])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals(utils.OperatorClaimsKey, claims)
		return c.Next()
	}
}

// Operator returns the operator authenticated by AuthMiddleware, or "".
func Operator(c *fiber.Ctx) string {
	if claims, ok := c.Locals(utils.OperatorClaimsKey).(*utils.OperatorClaims); ok {
		return claims.Operator
	}
	return ""
}
