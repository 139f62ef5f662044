/**
 * @description
 * This file sets up the HTTP router for the hawala-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * middleware for CORS, authentication and public-endpoint throttling.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser dashboards.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the wiring the router needs beyond the handlers.
type RouterConfig struct {
	JWKSURL          string
	InternalAPIKey   string
	AllowedOrigins   []string
	PublicRateLimit  int
	PublicRateWindow time.Duration
	Limiter          RateLimiter
}

// Routes creates and returns the router for the settlement service.
func Routes(h *TransferHandlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public endpoints: conversion quotes and transfer tracking. Throttled
	// per client IP since they require no authentication.
	r.Group(func(r chi.Router) {
		r.Use(PublicRateLimitMiddleware(cfg.Limiter, "public", cfg.PublicRateLimit, cfg.PublicRateWindow))

		r.Get("/rates/convert", h.ConvertHandler)
		r.Post("/rates/convert", h.ConvertHandler)
		r.Get("/transfers/track/{referenceCode}", h.TrackTransferHandler)
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWKSURL))

		r.Post("/transfers", h.CreateTransferHandler)
		r.Get("/transfers", h.ListTransfersHandler)
		r.Get("/transfers/{transferID}", h.GetTransferHandler)
		r.Post("/transfers/{transferID}/complete", h.CompleteTransferHandler)
		r.Post("/transfers/{transferID}/cancel", h.CancelTransferHandler)
	})

	// Internal service-to-service endpoints.
	r.Group(func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(cfg.InternalAPIKey))

		r.Post("/rates/cache/invalidate", h.InvalidateRateCacheHandler)
	})

	return r
}
