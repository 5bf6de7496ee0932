package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Navneet-55/msmesolut/internal/llm"
	"github.com/Navneet-55/msmesolut/internal/store"
)

// MarketingAgent writes content and plans and tunes campaigns.
type MarketingAgent struct {
	base
	data MarketingStore
}

// NewMarketingAgent creates the marketing agent.
func NewMarketingAgent(data MarketingStore, caps *llm.Capabilities) *MarketingAgent {
	return &MarketingAgent{base: newBase(caps), data: data}
}

// Type returns Marketing.
func (a *MarketingAgent) Type() Type { return Marketing }

// Execute runs one marketing action.
func (a *MarketingAgent) Execute(ctx context.Context, organizationID string, in Input) (*Result, error) {
	action, err := prepare(Marketing, in)
	if err != nil {
		return nil, err
	}
	switch action {
	case ActionGenerateContent:
		return a.generateContent(ctx, organizationID, in)
	case ActionCreateCampaign:
		return a.createCampaign(ctx, organizationID, in)
	case ActionOptimizeCampaign:
		return a.optimizeCampaign(ctx, organizationID, in.String("campaignId"))
	}
	return nil, &UnknownActionError{Action: in.Action}
}

// organizationName returns the tenant's display name, or "" when the
// organization row is missing.
func organizationName(ctx context.Context, orgs interface {
	GetOrganization(ctx context.Context, id string) (*store.Organization, error)
}, organizationID string) (string, error) {
	org, err := orgs.GetOrganization(ctx, organizationID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading organization: %w", err)
	}
	return org.Name, nil
}

func (a *MarketingAgent) generateContent(ctx context.Context, organizationID string, in Input) (*Result, error) {
	contentType, topic := in.String("contentType"), in.String("topic")
	orgName, err := organizationName(ctx, a.data, organizationID)
	if err != nil {
		return nil, err
	}
	if orgName == "" {
		orgName = "the organization"
	}

	var campaignContext string
	if id := in.String("campaignId"); id != "" {
		c, err := a.data.GetCampaign(ctx, organizationID, id)
		switch {
		case err == nil:
			campaignContext = fmt.Sprintf("Campaign: %s\nType: %s\nBudget: $%.2f\n", c.Name, c.Type, c.Budget)
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("loading campaign: %w", err)
		}
	}

	prompt := fmt.Sprintf(`Write %s content for %s.

Topic: %s
%s
Keep the tone engaging and professional, put the audience's needs first, end with a clear call to action, and make it suitable for the %s format.`,
		contentType, orgName, topic, campaignContext, contentType)

	res, err := a.generate(ctx, prompt, 1000, 0.8)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output:    map[string]any{"content": res.Text, "type": contentType, "topic": topic},
		Reasoning: fmt.Sprintf("Generated %s content tailored for the organization's brand and campaign goals.", contentType),
		Metadata:  usageMetadata(res),
	}, nil
}

func (a *MarketingAgent) createCampaign(ctx context.Context, organizationID string, in Input) (*Result, error) {
	name := in.String("name")
	goals := in.String("goals")
	if list := in.Strings("goals"); len(list) > 0 {
		goals = strings.Join(list, ", ")
	}
	orgName, err := organizationName(ctx, a.data, organizationID)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Plan a marketing campaign for %s.

Campaign name: %s
Type: %s
Budget: $%.2f
Target audience: %s
Goals: %s

Lay out the objectives and KPIs, audience segments, channel mix, content calendar, budget allocation per channel, timeline with milestones, and how success will be measured.`,
		orNA(orgName), name, orNA(in.String("type")), in.Float("budget"), orNA(in.String("targetAudience")), orNA(goals))

	res, err := a.generate(ctx, prompt, 1500, 0.7)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output:    map[string]any{"strategy": res.Text, "campaignName": name},
		Reasoning: "Created comprehensive campaign strategy based on objectives, budget, and target audience.",
		Metadata:  usageMetadata(res),
	}, nil
}

// CampaignPerformance is the funnel summary computed before optimization.
type CampaignPerformance struct {
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversionRate"`
	TotalRevenue   float64 `json:"totalRevenue"`
}

// SummarizeCampaign totals metrics into CTR and conversion rate (percent).
// Rates are zero when their denominator is zero.
func SummarizeCampaign(metrics []store.CampaignMetric) CampaignPerformance {
	var impressions, clicks, conversions int
	var p CampaignPerformance
	for _, m := range metrics {
		impressions += m.Impressions
		clicks += m.Clicks
		conversions += m.Conversions
		p.TotalRevenue += m.Revenue
	}
	if impressions > 0 {
		p.CTR = float64(clicks) / float64(impressions) * 100
	}
	if clicks > 0 {
		p.ConversionRate = float64(conversions) / float64(clicks) * 100
	}
	return p
}

func (a *MarketingAgent) optimizeCampaign(ctx context.Context, organizationID, campaignID string) (*Result, error) {
	campaign, err := a.data.GetCampaign(ctx, organizationID, campaignID)
	if err != nil {
		return nil, lookupError("Campaign", campaignID, err)
	}
	metrics, err := a.data.CampaignMetrics(ctx, campaign.ID, 30)
	if err != nil {
		return nil, fmt.Errorf("loading campaign metrics: %w", err)
	}
	contents, err := a.data.CampaignContents(ctx, campaign.ID, 10)
	if err != nil {
		return nil, fmt.Errorf("loading campaign content: %w", err)
	}
	perf := SummarizeCampaign(metrics)

	titles := make([]string, 0, len(contents))
	for _, c := range contents {
		titles = append(titles, fmt.Sprintf("%s (%s, %s)", c.Title, c.Type, c.Status))
	}

	prompt := fmt.Sprintf(`Review this campaign's performance and recommend optimizations.

Campaign: %s
Type: %s
Budget: $%.2f
Status: %s

Performance over the last %d data points:
- Click-through rate: %.2f%%
- Conversion rate: %.2f%%
- Revenue: $%.2f

Content in the campaign:
%s

Give an assessment, the main problems, specific optimizations, budget reallocation, A/B tests worth running, and the expected impact.`,
		campaign.Name, campaign.Type, campaign.Budget, campaign.Status, len(metrics),
		perf.CTR, perf.ConversionRate, perf.TotalRevenue, orNA(strings.Join(titles, "\n")))

	res, err := a.generate(ctx, prompt, 1200, 0.6)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output: map[string]any{
			"analysis":   res.Text,
			"metrics":    perf,
			"campaignId": campaign.ID,
		},
		Reasoning: "Analyzed campaign performance data to provide data-driven optimization recommendations.",
		Metadata:  usageMetadata(res),
	}, nil
}
