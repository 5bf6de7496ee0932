package agent

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Navneet-55/msmesolut/internal/llm"
	"github.com/Navneet-55/msmesolut/internal/store"
)

// SalesLeadAgent qualifies, enriches and scores leads, writing the result
// back to the lead.
type SalesLeadAgent struct {
	base
	data LeadStore
}

// NewSalesLeadAgent creates the sales_lead agent.
func NewSalesLeadAgent(data LeadStore, caps *llm.Capabilities) *SalesLeadAgent {
	return &SalesLeadAgent{base: newBase(caps), data: data}
}

// Type returns SalesLead.
func (a *SalesLeadAgent) Type() Type { return SalesLead }

// Execute runs one sales lead action.
func (a *SalesLeadAgent) Execute(ctx context.Context, organizationID string, in Input) (*Result, error) {
	action, err := prepare(SalesLead, in)
	if err != nil {
		return nil, err
	}
	leadID := in.String("leadId")
	switch action {
	case ActionQualifyLead:
		return a.qualifyLead(ctx, organizationID, leadID)
	case ActionEnrichLead:
		return a.enrichLead(ctx, organizationID, leadID)
	case ActionScoreLead:
		return a.scoreLead(ctx, organizationID, leadID)
	}
	return nil, &UnknownActionError{Action: in.Action}
}

func (a *SalesLeadAgent) lead(ctx context.Context, organizationID, id string) (*store.Lead, error) {
	l, err := a.data.GetLead(ctx, organizationID, id)
	if err != nil {
		return nil, lookupError("Lead", id, err)
	}
	return l, nil
}

// update writes u back at the version the lead was read at.
func (a *SalesLeadAgent) update(ctx context.Context, organizationID string, lead *store.Lead, u store.LeadUpdate) error {
	if _, err := a.data.UpdateLead(ctx, organizationID, lead.ID, lead.Version, u); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Entity: "Lead", ID: lead.ID}
		}
		return fmt.Errorf("updating lead: %w", err)
	}
	return nil
}

func leadProfile(l *store.Lead) map[string]any {
	return map[string]any{
		"name":       l.Name,
		"email":      l.Email,
		"company":    l.Company,
		"source":     l.Source,
		"status":     l.Status,
		"score":      l.Score,
		"enrichment": l.Enrichment,
	}
}

func peerProfiles(leads []store.Lead, excludeID string) []map[string]any {
	out := make([]map[string]any, 0, len(leads))
	for _, l := range leads {
		if l.ID == excludeID {
			continue
		}
		out = append(out, map[string]any{
			"company": l.Company,
			"source":  l.Source,
			"status":  l.Status,
			"score":   l.Score,
		})
	}
	return out
}

// clampScore rounds a model score into the 0-100 range stored on leads.
func clampScore(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

// Qualification is the extracted qualification verdict.
type Qualification struct {
	Qualified     bool     `json:"qualified"`
	FitScore      float64  `json:"fitScore"`
	BuyingSignals []string `json:"buyingSignals"`
	DealSize      string   `json:"dealSize"`
	Timeline      string   `json:"timeline"`
	NextSteps     []string `json:"nextSteps"`
	Reasoning     string   `json:"reasoning"`
}

const qualificationSchema = `{
  "qualified": true,
  "fitScore": "number 0-100",
  "buyingSignals": ["string"],
  "dealSize": "string",
  "timeline": "string",
  "nextSteps": ["string"],
  "reasoning": "string"
}`

func (a *SalesLeadAgent) qualifyLead(ctx context.Context, organizationID, leadID string) (*Result, error) {
	lead, err := a.lead(ctx, organizationID, leadID)
	if err != nil {
		return nil, err
	}
	peers, err := a.data.LeadsByStatus(ctx, organizationID, []string{store.LeadQualified, store.LeadConverted}, 10)
	if err != nil {
		return nil, fmt.Errorf("loading reference leads: %w", err)
	}

	prompt := fmt.Sprintf(`Qualify this sales lead against our ideal customer profile.

Lead:
%s

Leads that qualified or converted before:
%s

Judge company fit, buying signals, budget and authority, need and urgency, and the likely timeline. Decide whether the lead is qualified, give a fit score from 0 to 100, and propose next steps.

Answer as JSON:
%s`, indentJSON(leadProfile(lead)), indentJSON(peerProfiles(peers, lead.ID)), qualificationSchema)

	res, err := a.generate(ctx, prompt, 1500, 0.5)
	if err != nil {
		return nil, err
	}
	q, err := extract[Qualification](ctx, a.caps, res.Text, qualificationSchema)
	if err != nil {
		return nil, err
	}
	q.BuyingSignals = nonNil(q.BuyingSignals)
	q.NextSteps = nonNil(q.NextSteps)

	status := store.LeadNew
	if q.Qualified {
		status = store.LeadQualified
	}
	score := clampScore(q.FitScore)
	if err := a.update(ctx, organizationID, lead, store.LeadUpdate{Status: &status, Score: &score}); err != nil {
		return nil, err
	}

	reasoning := q.Reasoning
	if reasoning == "" {
		reasoning = "Qualified lead based on ICP fit, buying signals, and historical conversion patterns."
	}
	return &Result{
		Output:    map[string]any{"qualification": q, "leadId": lead.ID},
		Reasoning: reasoning,
		Metadata:  usageMetadata(res),
	}, nil
}

// Enrichment is the extracted lead profile stored on the lead.
type Enrichment struct {
	CompanySize    string         `json:"companySize"`
	Industry       string         `json:"industry"`
	TechStack      []string       `json:"techStack"`
	RecentNews     []string       `json:"recentNews"`
	SocialPresence map[string]any `json:"socialPresence"`
	Funding        map[string]any `json:"funding"`
	DecisionMakers []string       `json:"decisionMakers"`
	PainPoints     []string       `json:"painPoints"`
	Confidence     float64        `json:"confidence"`
}

const enrichmentSchema = `{
  "companySize": "string",
  "industry": "string",
  "techStack": ["string"],
  "recentNews": ["string"],
  "socialPresence": {"linkedin": "string", "twitter": "string"},
  "funding": {"stage": "string", "amount": "string"},
  "decisionMakers": ["string"],
  "painPoints": ["string"],
  "confidence": "number 0-1"
}`

// asMap converts e into the generic form the lead's enrichment column holds.
func (e Enrichment) asMap() map[string]any {
	return map[string]any{
		"companySize":    e.CompanySize,
		"industry":       e.Industry,
		"techStack":      nonNil(e.TechStack),
		"recentNews":     nonNil(e.RecentNews),
		"socialPresence": e.SocialPresence,
		"funding":        e.Funding,
		"decisionMakers": nonNil(e.DecisionMakers),
		"painPoints":     nonNil(e.PainPoints),
		"confidence":     e.Confidence,
	}
}

func (a *SalesLeadAgent) enrichLead(ctx context.Context, organizationID, leadID string) (*Result, error) {
	lead, err := a.lead(ctx, organizationID, leadID)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Enrich this lead with what is known or can reasonably be inferred about the company.

Lead:
%s

Cover company size, industry, technology stack, recent news, social presence, funding, likely decision makers and pain points. Give a confidence between 0 and 1 for the profile as a whole.

Answer as JSON:
%s`, indentJSON(leadProfile(lead)), enrichmentSchema)

	res, err := a.generate(ctx, prompt, 1500, 0.6)
	if err != nil {
		return nil, err
	}
	e, err := extract[Enrichment](ctx, a.caps, res.Text, enrichmentSchema)
	if err != nil {
		return nil, err
	}
	enrichment := e.asMap()
	if err := a.update(ctx, organizationID, lead, store.LeadUpdate{Enrichment: enrichment}); err != nil {
		return nil, err
	}

	return &Result{
		Output:    map[string]any{"enrichment": enrichment, "leadId": lead.ID},
		Reasoning: "Enriched lead data using available information and industry knowledge to provide comprehensive lead profile.",
		Metadata:  usageMetadata(res),
	}, nil
}

// ScoreBreakdown splits a lead score into its drivers.
type ScoreBreakdown struct {
	CompanyFit   float64 `json:"companyFit"`
	Engagement   float64 `json:"engagement"`
	BuyingIntent float64 `json:"buyingIntent"`
	DataQuality  float64 `json:"dataQuality"`
}

// LeadScore is the extracted predictive score.
type LeadScore struct {
	Score           float64        `json:"score"`
	Breakdown       ScoreBreakdown `json:"breakdown"`
	Confidence      float64        `json:"confidence"`
	Recommendations []string       `json:"recommendations"`
}

const scoreSchema = `{
  "score": "number 0-100",
  "breakdown": {"companyFit": "number", "engagement": "number", "buyingIntent": "number", "dataQuality": "number"},
  "confidence": "number 0-1",
  "recommendations": ["string"]
}`

func (a *SalesLeadAgent) scoreLead(ctx context.Context, organizationID, leadID string) (*Result, error) {
	lead, err := a.lead(ctx, organizationID, leadID)
	if err != nil {
		return nil, err
	}
	converted, err := a.data.LeadsByStatus(ctx, organizationID, []string{store.LeadConverted}, 20)
	if err != nil {
		return nil, fmt.Errorf("loading converted leads: %w", err)
	}

	prompt := fmt.Sprintf(`Score this lead from 0 to 100 on its likelihood to convert.

Lead:
%s

Leads that converted:
%s

Break the score down into company fit, engagement, buying intent and data quality, state your confidence, and recommend how to move the lead forward.

Answer as JSON:
%s`, indentJSON(leadProfile(lead)), indentJSON(peerProfiles(converted, lead.ID)), scoreSchema)

	res, err := a.generate(ctx, prompt, 1500, 0.5)
	if err != nil {
		return nil, err
	}
	sc, err := extract[LeadScore](ctx, a.caps, res.Text, scoreSchema)
	if err != nil {
		return nil, err
	}
	sc.Recommendations = nonNil(sc.Recommendations)

	score := clampScore(sc.Score)
	if err := a.update(ctx, organizationID, lead, store.LeadUpdate{Score: &score}); err != nil {
		return nil, err
	}

	return &Result{
		Output:    map[string]any{"scoring": sc, "leadId": lead.ID},
		Reasoning: "Calculated lead score using predictive model based on fit, engagement, intent, and historical conversion data.",
		Metadata:  usageMetadata(res),
	}, nil
}
