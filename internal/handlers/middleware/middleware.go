package middleware

import (
	"server/config"
	userController "server/internal/controllers/users"
	"server/internal/database"
	"server/internal/logger"
	. "server/internal/models"
	"server/internal/repositories"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const SessionCookie = "token"

type Middleware struct {
	db       database.DB
	config   config.Config
	userRepo repositories.UserRepository
	log      logger.Logger
}

func New(db database.DB, config config.Config, userRepo repositories.UserRepository) Middleware {
	return Middleware{
		db:       db,
		config:   config,
		userRepo: userRepo,
		log:      logger.New("middleware"),
	}
}

// RequireAuth resolves the session cookie (or bearer token) to a user and
// stores it in c.Locals("user").
func (m Middleware) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := sessionToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{"message": "not authenticated"})
		}

		var session userController.Session
		found, err := database.NewCacheBuilder(m.db.Cache.Session, userController.SessionKey(token)).
			WithContext(c.Context()).
			Get(&session)
		if err != nil {
			m.log.Function("RequireAuth").Er("failed to read session", err)
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{"message": "not authenticated"})
		}
		if !found {
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{"message": "not authenticated"})
		}

		user, err := m.userRepo.GetByID(c.Context(), session.UserID)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{"message": "not authenticated"})
		}

		c.Locals("user", *user)
		return c.Next()
	}
}

// RequireDoctor must run after RequireAuth.
func (m Middleware) RequireDoctor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := c.Locals("user").(User)
		if !ok || user.UserType != UserTypeDoctor {
			return c.Status(fiber.StatusForbidden).
				JSON(fiber.Map{"message": "doctor account required"})
		}
		return c.Next()
	}
}

func sessionToken(c *fiber.Ctx) string {
	if cookie := c.Cookies(SessionCookie); cookie != "" {
		return cookie
	}

	auth := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	return ""
}
