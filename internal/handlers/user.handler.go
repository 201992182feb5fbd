package handlers

import (
	"errors"
	"server/internal/app"
	userController "server/internal/controllers/users"
	"server/internal/handlers/middleware"
	"server/internal/logger"
	. "server/internal/models"
	"time"

	"github.com/gofiber/fiber/v2"
)

type UserHandler struct {
	Handler
	controller    userController.UserController
	sessionExpiry time.Duration
}

func NewUserHandler(app app.App, router fiber.Router) *UserHandler {
	log := logger.New("handlers").File("user_handler")
	return &UserHandler{
		controller:    *app.UserController,
		sessionExpiry: time.Duration(app.Config.SessionExpiryHours) * time.Hour,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *UserHandler) Register() {
	auth := h.router.Group("/auth")
	auth.Post("/register", h.register)
	auth.Post("/login", h.login)
	auth.Post("/logout", h.logout)
	auth.Get("/me", h.middleware.RequireAuth(), h.me)

	doctors := h.router.Group("/doctors")
	doctors.Get("/profile", h.middleware.RequireAuth(), h.middleware.RequireDoctor(), h.profile)
}

func (h *UserHandler) register(c *fiber.Ctx) error {
	log := h.log.Function("register")

	var request RegisterRequest
	if err := c.BodyParser(&request); err != nil {
		log.Er("failed to parse register request", err)
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "failed to parse register request"})
	}

	user, token, err := h.controller.Register(c.Context(), &request)
	if err != nil {
		if errors.Is(err, userController.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{"message": err.Error()})
		}
		log.Er("failed to register user", err)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to register"})
	}

	h.setSessionCookie(c, token)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "success", "user": user})
}

func (h *UserHandler) login(c *fiber.Ctx) error {
	log := h.log.Function("login")

	var request LoginRequest
	if err := c.BodyParser(&request); err != nil {
		log.Er("failed to parse login request", err)
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "failed to parse login request"})
	}

	user, token, err := h.controller.Login(c.Context(), &request)
	if err != nil {
		if errors.Is(err, userController.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{"message": "invalid credentials"})
		}
		log.Er("failed to login user", err)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to login"})
	}

	h.setSessionCookie(c, token)
	return c.JSON(fiber.Map{"message": "success", "user": user})
}

func (h *UserHandler) logout(c *fiber.Ctx) error {
	h.controller.Logout(c.Context(), c.Cookies(middleware.SessionCookie))

	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	})

	return c.JSON(fiber.Map{"message": "success"})
}

func (h *UserHandler) me(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(User)
	if !ok || user.ID == "" {
		h.log.Function("me").ErMsg("No user found in locals")
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "error", "error": "failed to get user"})
	}

	return c.JSON(fiber.Map{"message": "success", "user": user})
}

func (h *UserHandler) profile(c *fiber.Ctx) error {
	user := c.Locals("user").(User)
	return c.JSON(fiber.Map{"message": "success", "user": user})
}

func (h *UserHandler) setSessionCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Expires:  time.Now().Add(h.sessionExpiry),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
