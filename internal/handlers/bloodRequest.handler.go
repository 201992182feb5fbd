package handlers

import (
	"errors"
	"server/internal/app"
	bloodRequestController "server/internal/controllers/bloodrequest"
	"server/internal/logger"
	. "server/internal/models"

	"github.com/gofiber/fiber/v2"
)

type BloodRequestHandler struct {
	Handler
	controller   bloodRequestController.BloodRequestController
	pollInterval int
	pollTimeout  int
}

func NewBloodRequestHandler(app app.App, router fiber.Router) *BloodRequestHandler {
	log := logger.New("handlers").File("bloodRequest_handler")
	return &BloodRequestHandler{
		controller:   *app.BloodRequestController,
		pollInterval: app.Config.PollIntervalSeconds,
		pollTimeout:  app.Config.PollTimeoutSeconds,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *BloodRequestHandler) Register() {
	requests := h.router.Group("/blood-requests")

	requests.Post("/", h.middleware.RequireAuth(), h.middleware.RequireDoctor(), h.createRequest)
	requests.Get("/:requestId", h.middleware.RequireAuth(), h.middleware.RequireDoctor(), h.getStatus)

	// Public, token-authorized donor endpoints.
	requests.Get("/:requestId/respond/:token", h.getDonorView)
	requests.Post("/:requestId/respond/:token", h.recordResponse)
}

func (h *BloodRequestHandler) createRequest(c *fiber.Ctx) error {
	log := h.log.Function("createRequest")

	user := c.Locals("user").(User)

	var request CreateBloodRequestRequest
	if err := c.BodyParser(&request); err != nil {
		log.Er("failed to parse blood request", err)
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "failed to parse blood request"})
	}

	bloodRequest, err := h.controller.Create(c.Context(), user.ID, &request)
	if err != nil {
		if errors.Is(err, bloodRequestController.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{"message": err.Error()})
		}
		log.Er("failed to create blood request", err)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to create blood request"})
	}

	return c.Status(fiber.StatusCreated).
		JSON(fiber.Map{"message": "success", "bloodRequest": bloodRequest})
}

func (h *BloodRequestHandler) getStatus(c *fiber.Ctx) error {
	log := h.log.Function("getStatus")

	user := c.Locals("user").(User)
	requestID := c.Params("requestId")

	bloodRequest, err := h.controller.GetStatus(c.Context(), requestID, user.ID)
	if err != nil {
		if errors.Is(err, bloodRequestController.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).
				JSON(fiber.Map{"message": "Blood request not found"})
		}
		log.Er("failed to get blood request status", err, "requestID", requestID)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to get blood request status"})
	}

	return c.JSON(fiber.Map{
		"message":             "success",
		"bloodRequest":        bloodRequest,
		"pollIntervalSeconds": h.pollInterval,
		"pollTimeoutSeconds":  h.pollTimeout,
	})
}

func (h *BloodRequestHandler) getDonorView(c *fiber.Ctx) error {
	log := h.log.Function("getDonorView")

	requestID := c.Params("requestId")
	token := c.Params("token")

	view, err := h.controller.GetDonorView(c.Context(), requestID, token)
	if err != nil {
		if errors.Is(err, bloodRequestController.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).
				JSON(fiber.Map{"message": "Invalid response link"})
		}
		log.Er("failed to get donor view", err, "requestID", requestID)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to load donor information"})
	}

	return c.JSON(fiber.Map{"message": "success", "data": view})
}

func (h *BloodRequestHandler) recordResponse(c *fiber.Ctx) error {
	log := h.log.Function("recordResponse")

	requestID := c.Params("requestId")
	token := c.Params("token")

	var request RespondRequest
	if err := c.BodyParser(&request); err != nil {
		log.Er("failed to parse donor response", err)
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "failed to parse donor response"})
	}

	ack, err := h.controller.RecordResponse(c.Context(), requestID, token, request.Response)
	if err != nil {
		switch {
		case errors.Is(err, bloodRequestController.ErrValidation):
			return c.Status(fiber.StatusBadRequest).
				JSON(fiber.Map{"message": err.Error()})
		case errors.Is(err, bloodRequestController.ErrNotFound):
			return c.Status(fiber.StatusNotFound).
				JSON(fiber.Map{"message": "Invalid response link"})
		case errors.Is(err, bloodRequestController.ErrAlreadyResponded):
			return c.Status(fiber.StatusConflict).
				JSON(fiber.Map{"message": "Your response has already been recorded"})
		}
		log.Er("failed to record donor response", err, "requestID", requestID)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to record donor response"})
	}

	return c.JSON(fiber.Map{
		"message": "Thank you! Your response has been recorded.",
		"data":    ack,
	})
}
