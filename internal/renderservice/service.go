package renderservice

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/rowanhale/fakturo/internal/render"
)

// Service is the HTTP facade over the engine pool. Every route requires
// the shared-secret header; an unconfigured secret rejects everything
// with a server error rather than running open.
type Service struct {
	pool   *Pool
	secret string
	logger zerolog.Logger
}

// NewService wires the facade. poolSize bounds concurrent renders.
func NewService(poolSize int, secret string, logger zerolog.Logger) *Service {
	return &Service{
		pool:   NewPool(poolSize, newTemplateEngine),
		secret: secret,
		logger: logger,
	}
}

// Routes registers the render endpoints on e.
func (s *Service) Routes(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	g := e.Group("", s.requireSecret)
	g.POST("/generate-invoice", s.generateInvoice)
	g.POST("/generate-receipt", s.generateReceipt)
	g.POST("/generate-batch", s.generateBatch)
}

// requireSecret authenticates requests against the shared secret. The
// length check must precede the constant-time compare, which requires
// equal-length inputs to be meaningful.
func (s *Service) requireSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.secret == "" {
			s.logger.Error().Msg("render service secret is not configured")
			return echo.NewHTTPError(http.StatusInternalServerError, "render service is not configured")
		}

		provided := c.Request().Header.Get(render.SecretHeader)
		if provided == "" || len(provided) != len(s.secret) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid render service key")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.secret)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid render service key")
		}
		return next(c)
	}
}

func (s *Service) generateInvoice(c echo.Context) error {
	var payload render.Payload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed render payload")
	}
	return s.renderOne(c, payload, func(eng Engine) ([]byte, error) {
		return eng.RenderInvoice(payload)
	})
}

func (s *Service) generateReceipt(c echo.Context) error {
	var payload render.Payload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed render payload")
	}
	if payload.Payment == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "receipt payload requires a payment")
	}
	return s.renderOne(c, payload, func(eng Engine) ([]byte, error) {
		return eng.RenderReceipt(payload)
	})
}

func (s *Service) renderOne(c echo.Context, payload render.Payload, fn func(Engine) ([]byte, error)) error {
	ctx := c.Request().Context()
	eng, err := s.pool.Acquire(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no render engine available")
	}
	defer s.pool.Release(eng)

	doc, err := fn(eng)
	if err != nil {
		s.logger.Error().Err(err).Str("invoice", payload.InvoiceNumber).Msg("render failed")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.Blob(http.StatusOK, "text/html; charset=utf-8", doc)
}

type batchRequest struct {
	Payloads []render.Payload `json:"payloads"`
}

type batchResponse struct {
	Documents []string `json:"documents"`
}

// generateBatch renders every payload on one engine, in order. A single
// failure fails the whole batch so callers never see partial output.
func (s *Service) generateBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed batch request")
	}
	if len(req.Payloads) == 0 {
		return c.JSON(http.StatusOK, batchResponse{Documents: []string{}})
	}

	ctx := c.Request().Context()
	eng, err := s.pool.Acquire(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no render engine available")
	}
	defer s.pool.Release(eng)

	docs := make([]string, 0, len(req.Payloads))
	for i, payload := range req.Payloads {
		doc, err := eng.RenderInvoice(payload)
		if err != nil {
			s.logger.Error().Err(err).Int("index", i).Msg("batch render failed")
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		docs = append(docs, base64.StdEncoding.EncodeToString(doc))
	}
	return c.JSON(http.StatusOK, batchResponse{Documents: docs})
}

// Shutdown releases pooled engines.
func (s *Service) Shutdown() {
	s.pool.Close()
}
