// Package agent implements the agent orchestration layer.
//
// A Dispatcher resolves an agent Type through an immutable Registry, opens a
// run record, hands the input to the Agent and records the outcome. Each of
// the eight agents reads tenant data from the store, prompts the model
// through llm.Capabilities and returns a structured Result. Some actions
// write their conclusion back (ticket sentiment, lead score and enrichment)
// using the store's optimistic versioning.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/Navneet-55/msmesolut/internal/llm"
	luminaotel "github.com/Navneet-55/msmesolut/internal/otel"
	"github.com/Navneet-55/msmesolut/internal/store"
)

var tracer = luminaotel.Tracer("github.com/Navneet-55/msmesolut/internal/agent")

// Agent is one domain module. Implementations hold no per-call state.
type Agent interface {
	Type() Type
	Execute(ctx context.Context, organizationID string, in Input) (*Result, error)
}

// Input is a decoded run input: the action discriminator plus the remaining
// domain fields.
type Input struct {
	Action string
	Fields map[string]any
}

// NewInput splits raw into the action and its fields. A missing or
// non-string action yields an empty Action, which no agent accepts.
func NewInput(raw map[string]any) Input {
	fields := make(map[string]any, len(raw))
	maps.Copy(fields, raw)
	action, _ := fields["action"].(string)
	delete(fields, "action")
	return Input{Action: action, Fields: fields}
}

// String returns the string field key, or "".
func (in Input) String(key string) string {
	s, _ := in.Fields[key].(string)
	return s
}

// StringOr returns the string field key, or def when absent or empty.
func (in Input) StringOr(key, def string) string {
	if s := in.String(key); s != "" {
		return s
	}
	return def
}

// Float returns the numeric field key, or 0.
func (in Input) Float(key string) float64 {
	switch v := in.Fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

// Strings returns the string elements of the array field key.
func (in Input) Strings(key string) []string {
	switch v := in.Fields[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Result is what an agent returns for a successful action.
type Result struct {
	Output    map[string]any
	Reasoning string
	Metadata  map[string]any
}

// SupportStore is the data the customer support agent reads and writes.
type SupportStore interface {
	GetTicket(ctx context.Context, organizationID, id string) (*store.Ticket, error)
	GetCustomer(ctx context.Context, organizationID, id string) (*store.Customer, error)
	RecentTicketMessages(ctx context.Context, ticketID string, limit int) ([]store.TicketMessage, error)
	UpdateTicketSentiment(ctx context.Context, organizationID, ticketID string, version int64, sentiment string) (int64, error)
	KnowledgeByTypes(ctx context.Context, organizationID string, types []string, limit int) ([]store.KnowledgeArticle, error)
}

// MarketingStore is the data the marketing agent reads.
type MarketingStore interface {
	GetOrganization(ctx context.Context, id string) (*store.Organization, error)
	GetCampaign(ctx context.Context, organizationID, id string) (*store.Campaign, error)
	CampaignMetrics(ctx context.Context, campaignID string, limit int) ([]store.CampaignMetric, error)
	CampaignContents(ctx context.Context, campaignID string, limit int) ([]store.Content, error)
}

// FinanceStore is the data the financial agent reads.
type FinanceStore interface {
	Transactions(ctx context.Context, organizationID string, f store.TransactionFilter) ([]store.Transaction, error)
}

// SupplyStore is the data the supply chain agent reads.
type SupplyStore interface {
	Inventory(ctx context.Context, organizationID string) ([]store.InventoryItem, error)
	OrderLinesSince(ctx context.Context, organizationID string, since time.Time, productID string) ([]store.OrderLine, error)
}

// PeopleStore is the data the onboarding agent reads.
type PeopleStore interface {
	GetOrganization(ctx context.Context, id string) (*store.Organization, error)
	GetEmployee(ctx context.Context, organizationID, id string) (*store.Employee, error)
	OnboardingPlans(ctx context.Context, organizationID, employeeID string, limit int) ([]store.OnboardingPlan, error)
	KnowledgeByTypes(ctx context.Context, organizationID string, types []string, limit int) ([]store.KnowledgeArticle, error)
}

// CompetitiveStore is the data the competitive intelligence agent reads.
type CompetitiveStore interface {
	GetOrganization(ctx context.Context, id string) (*store.Organization, error)
	GetCompetitor(ctx context.Context, organizationID, id string) (*store.Competitor, error)
	ListCompetitors(ctx context.Context, organizationID string, limit int) ([]store.Competitor, error)
	CompetitorInsights(ctx context.Context, competitorID string, limit int) ([]store.CompetitorInsight, error)
}

// InsightStore is the data the data integration agent aggregates.
type InsightStore interface {
	Transactions(ctx context.Context, organizationID string, f store.TransactionFilter) ([]store.Transaction, error)
	OrdersSince(ctx context.Context, organizationID string, since time.Time, limit int) ([]store.Order, error)
	TicketsSince(ctx context.Context, organizationID string, since time.Time, limit int) ([]store.Ticket, error)
}

// LeadStore is the data the sales lead agent reads and writes.
type LeadStore interface {
	GetLead(ctx context.Context, organizationID, id string) (*store.Lead, error)
	LeadsByStatus(ctx context.Context, organizationID string, statuses []string, limit int) ([]store.Lead, error)
	UpdateLead(ctx context.Context, organizationID, leadID string, version int64, u store.LeadUpdate) (int64, error)
}

// DataStore is everything the full agent set needs. *store.Store satisfies it.
type DataStore interface {
	SupportStore
	MarketingStore
	FinanceStore
	SupplyStore
	PeopleStore
	CompetitiveStore
	InsightStore
	LeadStore
}

// base carries what every agent shares: the model capabilities and a clock
// for recency windows.
type base struct {
	caps *llm.Capabilities
	now  func() time.Time
}

func newBase(caps *llm.Capabilities) base {
	return base{caps: caps, now: time.Now}
}

// since returns the start of a window of the given number of days.
func (b base) since(days int) time.Time {
	return b.now().UTC().AddDate(0, 0, -days)
}

// generate runs one text generation with the action's budget.
func (b base) generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (*llm.TextResult, error) {
	res, err := b.caps.GenerateText(ctx, llm.TextRequest{
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: llm.Float(temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("generating text: %w", err)
	}
	return res, nil
}

// usageMetadata describes the generation behind a result.
func usageMetadata(res *llm.TextResult) map[string]any {
	return map[string]any{
		"model": res.Model,
		"usage": map[string]any{
			"promptTokens":     res.Usage.PromptTokens,
			"completionTokens": res.Usage.CompletionTokens,
			"totalTokens":      res.Usage.TotalTokens,
		},
	}
}

// extract restates generated text as T using the given shape description.
func extract[T any](ctx context.Context, caps *llm.Capabilities, text, schema string) (T, error) {
	v, err := llm.Extract[T](ctx, caps, llm.ExtractRequest{Text: text, Schema: schema})
	if err != nil {
		return v, fmt.Errorf("extracting structured output: %w", err)
	}
	return v, nil
}

// prepare resolves the action for t and validates the fields against its
// input schema. Unknown actions are reported before schema errors.
func prepare(t Type, in Input) (Action, error) {
	action, err := ParseAction(t, in.Action)
	if err != nil {
		return "", err
	}
	if err := validateInput(action, in.Fields); err != nil {
		return "", err
	}
	return action, nil
}

// indentJSON renders v for embedding in a prompt.
func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "null"
	}
	return string(b)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// nonNil keeps empty extracted lists as [] in run output.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
