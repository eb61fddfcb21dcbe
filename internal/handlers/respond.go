package handlers

import "github.com/gofiber/fiber/v2"

// responseEnvelope is the uniform reply shape for every endpoint, success or
// failure, so clients branch on the status flag rather than HTTP codes.
type responseEnvelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Heading string `json:"heading"`
	Data    any    `json:"data"`
}

func sendResponse(c *fiber.Ctx, code int, ok bool, heading string, message string, data any) error {
	if data == nil {
		data = fiber.Map{}
	}
	return c.Status(code).JSON(responseEnvelope{
		Status:  ok,
		Message: message,
		Heading: heading,
		Data:    data,
	})
}
