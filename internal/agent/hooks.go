package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Navneet-55/msmesolut/internal/store"
)

// HookPoint identifies where in a run a hook fires.
type HookPoint string

const (
	HookPreRun       HookPoint = "pre_run"       // before the run record is created; may abort
	HookRunCompleted HookPoint = "run_completed" // after the record is completed and linked
	HookRunFailed    HookPoint = "run_failed"    // after the record is failed
)

// Hook is a callback at one HookPoint.
type Hook interface {
	Point() HookPoint
	Execute(ctx context.Context, data *HookData) (*HookResult, error)
}

// HookData describes the run a hook fires for. RunID is empty at HookPreRun.
type HookData struct {
	OrganizationID string          `json:"organization_id"`
	AgentType      string          `json:"agent_type"`
	Action         string          `json:"action"`
	RunID          string          `json:"run_id,omitempty"`
	Stage          HookPoint       `json:"stage"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// HookResult controls the run after a pre-run hook.
type HookResult struct {
	Continue bool `json:"continue"`
}

// HookConfig declares a webhook in operator configuration.
type HookConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	On  string `mapstructure:"on" yaml:"on"` // "completed" | "failed" | "all"
}

// HookRegistry holds hooks per point. Register everything before the
// registry is handed to a Dispatcher.
type HookRegistry struct {
	hooks map[HookPoint][]Hook
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		hooks: make(map[HookPoint][]Hook),
	}
}

// Register adds a hook at its point.
func (r *HookRegistry) Register(hook Hook) {
	r.hooks[hook.Point()] = append(r.hooks[hook.Point()], hook)
}

// Execute runs all hooks for a point. A failing hook is logged and skipped;
// the first hook returning Continue=false stops the chain.
func (r *HookRegistry) Execute(ctx context.Context, point HookPoint, data *HookData) (*HookResult, error) {
	ctx, span := tracer.Start(ctx, "hooks.execute",
		trace.WithAttributes(
			attribute.String("hook_point", string(point)),
			attribute.String("organization_id", data.OrganizationID),
		))
	defer span.End()

	data.Stage = point
	for _, hook := range r.hooks[point] {
		result, err := hook.Execute(ctx, data)
		if err != nil {
			log.Warn().Err(err).Str("hook_point", string(point)).Msg("hook_execution_failed")
			continue
		}
		if result != nil && !result.Continue {
			span.SetAttributes(attribute.Bool("hook_aborted", true))
			return result, nil
		}
	}
	return &HookResult{Continue: true}, nil
}

// WebhookHook POSTs the hook data as JSON to a URL.
type WebhookHook struct {
	point  HookPoint
	url    string
	client *http.Client
}

// NewWebhookHook creates a webhook hook at point.
func NewWebhookHook(point HookPoint, url string) *WebhookHook {
	return &WebhookHook{
		point:  point,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Point returns the point this hook is registered at.
func (h *WebhookHook) Point() HookPoint { return h.point }

// Execute delivers data. Delivery failures are logged, never returned, so a
// slow receiver cannot fail a run.
func (h *WebhookHook) Execute(ctx context.Context, data *HookData) (*HookResult, error) {
	if h.url == "" {
		return &HookResult{Continue: true}, nil
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshaling hook data: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Lumina-Hook", string(h.point))

	// URL comes from operator configuration, not from request input.
	resp, err := h.client.Do(req) // #nosec G107
	if err != nil {
		log.Warn().Err(err).Str("url", h.url).Msg("webhook_delivery_failed")
		return &HookResult{Continue: true}, nil
	}
	defer resp.Body.Close()

	log.Debug().Int("status", resp.StatusCode).Str("url", h.url).Msg("webhook_delivered")
	return &HookResult{Continue: true}, nil
}

// NotificationWriter stores in-app notifications.
type NotificationWriter interface {
	CreateNotification(ctx context.Context, n *store.Notification) error
}

// NotificationHook raises an in-app notification for the organization when
// a run fails.
type NotificationHook struct {
	notifications NotificationWriter
}

// NewNotificationHook creates a run_failed hook writing to n.
func NewNotificationHook(n NotificationWriter) *NotificationHook {
	return &NotificationHook{notifications: n}
}

// Point returns HookRunFailed.
func (h *NotificationHook) Point() HookPoint { return HookRunFailed }

// Execute writes the notification.
func (h *NotificationHook) Execute(ctx context.Context, data *HookData) (*HookResult, error) {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(data.Payload, &payload)

	err := h.notifications.CreateNotification(ctx, &store.Notification{
		OrganizationID: data.OrganizationID,
		Type:           "error",
		Title:          fmt.Sprintf("Agent run failed: %s", data.AgentType),
		Message:        fmt.Sprintf("%s (run %s): %s", data.Action, data.RunID, payload.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("creating failure notification: %w", err)
	}
	return &HookResult{Continue: true}, nil
}

// LoadHooks builds a registry from webhook configuration plus any extra hooks.
func LoadHooks(configs []HookConfig, extra ...Hook) *HookRegistry {
	registry := NewHookRegistry()
	for _, cfg := range configs {
		if cfg.URL == "" {
			continue
		}
		switch cfg.On {
		case "completed":
			registry.Register(NewWebhookHook(HookRunCompleted, cfg.URL))
		case "failed":
			registry.Register(NewWebhookHook(HookRunFailed, cfg.URL))
		case "", "all":
			registry.Register(NewWebhookHook(HookRunCompleted, cfg.URL))
			registry.Register(NewWebhookHook(HookRunFailed, cfg.URL))
		default:
			log.Warn().Str("on", cfg.On).Str("url", cfg.URL).Msg("unknown_hook_filter")
		}
	}
	for _, h := range extra {
		registry.Register(h)
	}
	return registry
}
