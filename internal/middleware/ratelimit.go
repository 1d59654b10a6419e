package middleware

import (
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Output ingestion limits (per IP) - one model output per chat message
	OutputMax        int
	OutputExpiration time.Duration

	// WebSocket/Connection limits (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// Global: 200/min - generous for operator consoles polling state
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		// Output ingestion: 120/min = 2 outputs/sec from the persona loop
		OutputMax:        120,
		OutputExpiration: 1 * time.Minute,

		// WebSocket: 20 connections/min
		WebSocketMax:        20,
		WebSocketExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	cfg := DefaultRateLimitConfig()
	cfg.GlobalAPIMax = getIntEnv("RATE_LIMIT_GLOBAL_MAX", cfg.GlobalAPIMax)
	cfg.OutputMax = getIntEnv("RATE_LIMIT_OUTPUT_MAX", cfg.OutputMax)
	cfg.WebSocketMax = getIntEnv("RATE_LIMIT_WEBSOCKET_MAX", cfg.WebSocketMax)
	return cfg
}

// GlobalAPILimiter limits all API endpoints per IP.
func (rc *RateLimitConfig) GlobalAPILimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        rc.GlobalAPIMax,
		Expiration: rc.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests",
			})
		},
	})
}

// OutputLimiter limits the model-output ingestion endpoint per IP.
func (rc *RateLimitConfig) OutputLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        rc.OutputMax,
		Expiration: rc.OutputExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many model outputs, back off",
			})
		},
	})
}

// WebSocketLimiter limits new console connections per IP.
func (rc *RateLimitConfig) WebSocketLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        rc.WebSocketMax,
		Expiration: rc.WebSocketExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many connection attempts",
			})
		},
	})
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
