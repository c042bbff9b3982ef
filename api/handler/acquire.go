package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/racefetch/cleaner"
	"github.com/use-agent/racefetch/config"
	"github.com/use-agent/racefetch/engine"
	"github.com/use-agent/racefetch/models"
	"github.com/use-agent/racefetch/validate"
	"github.com/use-agent/racefetch/webhook"
)

// Acquire returns a handler for POST /api/v1/acquire.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults, resolve the gate.
//  2. Dispatcher.Dispatch → winning text          (records race_ms)
//  3. Cleaner.Clean       → raw or Markdown        (records cleaning_ms)
//  4. Fill attempts + timing, respond, notify the webhook.
func Acquire(d *engine.Dispatcher, cl *cleaner.Cleaner, n *webhook.Notifier, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()
		requestID := uuid.NewString()
		c.Header("X-Request-ID", requestID)

		// ── 1. Parse request ────────────────────────────────────────
		var req models.AcquireRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		req.Defaults()

		gate, ok := validate.ByName(req.Gate)
		if !ok {
			badRequest(c, "unknown gate "+req.Gate)
			return
		}
		if req.CSSSelector != "" {
			if _, err := cascadia.Compile(req.CSSSelector); err != nil {
				badRequest(c, "invalid css_selector: "+err.Error())
				return
			}
		}

		// ── 2. Race ─────────────────────────────────────────────────
		raceStart := time.Now()
		result, err := d.Dispatch(c.Request.Context(), req.URL, gate.Validate, raceConfig(req, gate, cfg.Race))
		raceMs := time.Since(raceStart).Milliseconds()

		if err != nil {
			ae := toAcquireError(err)
			slog.Warn("acquire failed", "url", req.URL, "gate", gate.Name, "code", ae.Code, "error", err)
			resp := models.AcquireResponse{
				Success:  false,
				Attempts: failureAttempts(err),
				Timing: models.TimingInfo{
					TotalMs: time.Since(totalStart).Milliseconds(),
					RaceMs:  raceMs,
				},
				Error: ae.ToDetail(),
			}
			notify(n, cfg, req, requestID, webhook.EventAcquireFailed, resp)
			c.JSON(mapErrorToStatus(ae), resp)
			return
		}

		// ── 3. Clean ────────────────────────────────────────────────
		cleanStart := time.Now()
		content, err := cl.Clean(result.Text, req.URL, cleaner.Options{
			OutputFormat: req.OutputFormat,
			ExtractMode:  req.ExtractMode,
			CSSSelector:  req.CSSSelector,
		})
		cleaningMs := time.Since(cleanStart).Milliseconds()
		if err != nil {
			ae := models.NewAcquireError(models.ErrCodeInternal, "post-processing failed", err)
			c.JSON(mapErrorToStatus(ae), models.AcquireResponse{
				Strategy: result.Strategy,
				Attempts: resultAttempts(result),
				Error:    ae.ToDetail(),
			})
			return
		}

		// ── 4. Respond ──────────────────────────────────────────────
		resp := models.AcquireResponse{
			Success:  true,
			Strategy: result.Strategy,
			Content:  content,
			Bytes:    len(result.Text),
			Attempts: resultAttempts(result),
			Timing: models.TimingInfo{
				TotalMs:    time.Since(totalStart).Milliseconds(),
				RaceMs:     raceMs,
				CleaningMs: cleaningMs,
			},
		}
		notify(n, cfg, req, requestID, webhook.EventAcquireCompleted, resp)
		c.JSON(http.StatusOK, resp)
	}
}

// raceConfig turns request overrides into race bounds. The overall timeout
// is capped by the server; zero values take the dispatcher defaults.
func raceConfig(req models.AcquireRequest, gate validate.Gate, rc config.RaceConfig) engine.RaceConfig {
	cfg := engine.RaceConfig{
		PerStrategyTimeout: time.Duration(req.PerStrategyTimeoutMs) * time.Millisecond,
		OverallTimeout:     time.Duration(req.OverallTimeoutMs) * time.Millisecond,
		Describe:           gate.Describe,
	}
	if limit := rc.MaxOverallTimeout; limit > 0 {
		cfg.OverallTimeout = min(cfg.OverallTimeout, limit)
		cfg.PerStrategyTimeout = min(cfg.PerStrategyTimeout, limit)
	}
	return cfg
}

// resultAttempts lists the losers in settlement order followed by the winner.
func resultAttempts(r *engine.RaceResult) []models.Attempt {
	attempts := make([]models.Attempt, 0, len(r.Outcomes)+1)
	for _, o := range r.Outcomes {
		attempts = append(attempts, models.Attempt{
			Strategy:  o.Strategy,
			Outcome:   o.Kind.String(),
			Reason:    o.Reason,
			ElapsedMs: o.Elapsed.Milliseconds(),
		})
	}
	return append(attempts, models.Attempt{
		Strategy:  r.Strategy,
		Outcome:   engine.OutcomeValid.String(),
		ElapsedMs: r.Elapsed.Milliseconds(),
	})
}

func failureAttempts(err error) []models.Attempt {
	var f *engine.RaceFailure
	if !errors.As(err, &f) {
		return []models.Attempt{}
	}
	attempts := make([]models.Attempt, 0, len(f.Reasons))
	for _, r := range f.Reasons {
		attempts = append(attempts, models.Attempt{
			Strategy: r.Strategy,
			Outcome:  r.Kind.String(),
			Reason:   r.Reason,
		})
	}
	return attempts
}

func notify(n *webhook.Notifier, cfg *config.Config, req models.AcquireRequest, requestID, eventType string, resp models.AcquireResponse) {
	if n == nil || req.WebhookURL == "" {
		return
	}
	secret := req.WebhookSecret
	if secret == "" {
		secret = cfg.Webhook.Secret
	}
	n.DeliverAsync(req.WebhookURL, secret, webhook.NewEvent(eventType, requestID, req.URL, resp))
}
