package utils

import (
	"github.com/gofiber/fiber/v2"
)

// RespondWithError sends the error envelope. code is a stable
// machine-readable reason; message is for humans. Internal error text never
// goes through here.
func RespondWithError(c *fiber.Ctx, statusCode int, code, message string) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"status":  "error",
		"code":    code,
		"message": message,
	})
}

// RespondWithJSON sends the success envelope.
func RespondWithJSON(c *fiber.Ctx, statusCode int, data interface{}) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"status": "success",
		"data":   data,
	})
}
