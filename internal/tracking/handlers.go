package tracking

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/events", authMiddleware, func(c *fiber.Ctx) error {
		var ev GeofenceEvent
		if err := c.BodyParser(&ev); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if ev.LocationID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "location_id required")
		}

		userID, _ := c.Locals("user_id").(string)
		switch ev.Type {
		case EventEnter:
			svc.HandleEnter(c.Context(), userID, ev)
		case EventExit:
			svc.HandleExit(c.Context(), userID, ev)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "type must be enter or exit")
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/exit", authMiddleware, func(c *fiber.Ctx) error {
		if !svc.ManualExit(c.Context()) {
			return fiber.NewError(fiber.StatusConflict, "no active session")
		}
		return c.SendStatus(fiber.StatusOK)
	})

	r.Get("/status", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(svc.Status(c.Context()))
	})

	r.Put("/pause", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Seconds int `json:"seconds"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := svc.SetPauseSeconds(c.Context(), req.Seconds); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusOK)
	})

	r.Get("/today", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		entry, err := svc.Today(c.Context(), userID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if entry == nil {
			return c.JSON(fiber.Map{})
		}
		return c.JSON(entry)
	})

	r.Get("/hours/:date", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		entry, err := svc.DailyFor(c.Context(), userID, c.Params("date"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if entry == nil {
			return fiber.NewError(fiber.StatusNotFound, "no entry for date")
		}
		return c.JSON(entry)
	})
}
