package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Navneet-55/msmesolut/internal/store"
)

func TestHookRegistry_EmptyReturnsTrue(t *testing.T) {
	registry := NewHookRegistry()
	result, err := registry.Execute(context.Background(), HookPreRun, &HookData{
		OrganizationID: "org_1",
		AgentType:      "marketing",
	})
	require.NoError(t, err)
	assert.True(t, result.Continue)
}

type abortHook struct {
	point HookPoint
}

func (h *abortHook) Point() HookPoint { return h.point }
func (h *abortHook) Execute(_ context.Context, _ *HookData) (*HookResult, error) {
	return &HookResult{Continue: false}, nil
}

func TestHookRegistry_AbortPipeline(t *testing.T) {
	registry := NewHookRegistry()
	registry.Register(&abortHook{point: HookPreRun})

	result, err := registry.Execute(context.Background(), HookPreRun, &HookData{OrganizationID: "org_1"})
	require.NoError(t, err)
	assert.False(t, result.Continue)
}

type countingHook struct {
	point   HookPoint
	counter *int32
}

func (h *countingHook) Point() HookPoint { return h.point }
func (h *countingHook) Execute(_ context.Context, _ *HookData) (*HookResult, error) {
	atomic.AddInt32(h.counter, 1)
	return &HookResult{Continue: true}, nil
}

func TestHookRegistry_MultipleHooksRun(t *testing.T) {
	var count int32
	registry := NewHookRegistry()
	for i := 0; i < 3; i++ {
		registry.Register(&countingHook{point: HookRunCompleted, counter: &count})
	}

	result, err := registry.Execute(context.Background(), HookRunCompleted, &HookData{OrganizationID: "org_1"})
	require.NoError(t, err)
	assert.True(t, result.Continue)
	assert.Equal(t, int32(3), atomic.LoadInt32(&count))
}

func TestHookRegistry_WrongPointNotTriggered(t *testing.T) {
	var count int32
	registry := NewHookRegistry()
	registry.Register(&countingHook{point: HookRunFailed, counter: &count})

	_, err := registry.Execute(context.Background(), HookRunCompleted, &HookData{OrganizationID: "org_1"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestWebhookHook_DeliversPayload(t *testing.T) {
	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, string(HookRunFailed), r.Header.Get("X-Lumina-Hook"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	hook := NewWebhookHook(HookRunFailed, server.URL)
	result, err := hook.Execute(context.Background(), &HookData{
		OrganizationID: "org_1",
		AgentType:      "sales_lead",
		Action:         "qualify_lead",
		RunID:          "run_123",
		Stage:          HookRunFailed,
	})
	require.NoError(t, err)
	assert.True(t, result.Continue)

	var got HookData
	require.NoError(t, json.Unmarshal(received, &got))
	assert.Equal(t, "org_1", got.OrganizationID)
	assert.Equal(t, "run_123", got.RunID)
	assert.Equal(t, HookRunFailed, got.Stage)
}

func TestWebhookHook_EmptyURLNoOp(t *testing.T) {
	hook := NewWebhookHook(HookRunCompleted, "")
	result, err := hook.Execute(context.Background(), &HookData{})
	require.NoError(t, err)
	assert.True(t, result.Continue)
}

func TestWebhookHook_UnreachableDoesNotAbort(t *testing.T) {
	hook := NewWebhookHook(HookRunCompleted, "http://127.0.0.1:1")
	result, err := hook.Execute(context.Background(), &HookData{OrganizationID: "org_1"})
	require.NoError(t, err)
	assert.True(t, result.Continue)
}

func TestLoadHooks(t *testing.T) {
	registry := LoadHooks([]HookConfig{
		{URL: "http://example.com/all"},
		{URL: "http://example.com/done", On: "completed"},
		{URL: "http://example.com/fail", On: "failed"},
		{URL: ""},
		{URL: "http://example.com/x", On: "sometimes"},
	}, &abortHook{point: HookPreRun})

	assert.Len(t, registry.hooks[HookRunCompleted], 2)
	assert.Len(t, registry.hooks[HookRunFailed], 2)
	assert.Len(t, registry.hooks[HookPreRun], 1)
}

type recordingNotifications struct {
	got []store.Notification
}

func (r *recordingNotifications) CreateNotification(_ context.Context, n *store.Notification) error {
	r.got = append(r.got, *n)
	return nil
}

func TestNotificationHook_WritesFailure(t *testing.T) {
	rec := &recordingNotifications{}
	hook := NewNotificationHook(rec)
	assert.Equal(t, HookRunFailed, hook.Point())

	_, err := hook.Execute(context.Background(), &HookData{
		OrganizationID: "org_1",
		AgentType:      "financial",
		Action:         "analyze_cash_flow",
		RunID:          "run_9",
		Payload:        json.RawMessage(`{"error":"generating text: boom"}`),
	})
	require.NoError(t, err)
	require.Len(t, rec.got, 1)
	assert.Equal(t, "org_1", rec.got[0].OrganizationID)
	assert.Equal(t, "error", rec.got[0].Type)
	assert.Contains(t, rec.got[0].Title, "financial")
	assert.Contains(t, rec.got[0].Message, "boom")
	assert.Contains(t, rec.got[0].Message, "run_9")
}
