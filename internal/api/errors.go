package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/mivius/automaton/internal/ratelimit"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// rateLimited renders a 429 with the standard rate limit headers.
// Retry-After is whole seconds, never negative.
func rateLimited(c fiber.Ctx, decision ratelimit.Decision, max int) error {
	retryAfter := int(time.Until(decision.ResetAt).Seconds())
	if retryAfter < 0 {
		retryAfter = 0
	}

	c.Set("Retry-After", strconv.Itoa(retryAfter))
	c.Set("X-RateLimit-Limit", strconv.Itoa(max))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

	problem := problems.NewStatusProblem(429).
		WithInstance(c.Path()).
		WithType("rate_limited").
		WithDetail(fmt.Sprintf("Rate limit exceeded, retry after %s", decision.ResetAt.Format(time.RFC3339)))

	return c.Status(fiber.StatusTooManyRequests).JSON(problem)
}
