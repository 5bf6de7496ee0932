package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/Navneet-55/msmesolut/internal/llm"
)

// CompetitiveAgent produces competitor and market intelligence.
type CompetitiveAgent struct {
	base
	data CompetitiveStore
}

// NewCompetitiveAgent creates the competitive agent.
func NewCompetitiveAgent(data CompetitiveStore, caps *llm.Capabilities) *CompetitiveAgent {
	return &CompetitiveAgent{base: newBase(caps), data: data}
}

// Type returns Competitive.
func (a *CompetitiveAgent) Type() Type { return Competitive }

// Execute runs one competitive intelligence action.
func (a *CompetitiveAgent) Execute(ctx context.Context, organizationID string, in Input) (*Result, error) {
	action, err := prepare(Competitive, in)
	if err != nil {
		return nil, err
	}
	switch action {
	case ActionAnalyzeCompetitor:
		return a.analyzeCompetitor(ctx, organizationID, in.String("competitorId"))
	case ActionMarketResearch:
		return a.marketResearch(ctx, organizationID, in.String("topic"))
	case ActionCompetitivePositioning:
		return a.competitivePositioning(ctx, organizationID)
	}
	return nil, &UnknownActionError{Action: in.Action}
}

// CompetitorAnalysis is the extracted competitor profile.
type CompetitorAnalysis struct {
	Overview        string   `json:"overview"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Positioning     string   `json:"positioning"`
	ThreatLevel     string   `json:"threatLevel"`
	Differentiation []string `json:"differentiation"`
}

const competitorSchema = `{
  "overview": "string",
  "strengths": ["string"],
  "weaknesses": ["string"],
  "positioning": "string",
  "threatLevel": "high|medium|low",
  "differentiation": ["string"]
}`

func (a *CompetitiveAgent) analyzeCompetitor(ctx context.Context, organizationID, competitorID string) (*Result, error) {
	comp, err := a.data.GetCompetitor(ctx, organizationID, competitorID)
	if err != nil {
		return nil, lookupError("Competitor", competitorID, err)
	}
	insights, err := a.data.CompetitorInsights(ctx, comp.ID, 20)
	if err != nil {
		return nil, fmt.Errorf("loading competitor insights: %w", err)
	}
	orgName, err := organizationName(ctx, a.data, organizationID)
	if err != nil {
		return nil, err
	}
	recent := make([]map[string]any, 0, len(insights))
	for _, in := range insights {
		recent = append(recent, map[string]any{
			"type":    in.Type,
			"title":   in.Title,
			"content": in.Content,
			"date":    in.CreatedAt.UTC().Format("2006-01-02"),
		})
	}

	prompt := fmt.Sprintf(`Analyze a competitor.

Our organization: %s
Competitor: %s
Industry: %s
Website: %s

Known strengths:
%s

Known weaknesses:
%s

Recent insights:
%s

Give an overview, strengths and weaknesses, market positioning, a threat level and the ways we can differentiate.

Answer as JSON:
%s`,
		orNA(orgName), comp.Name, orNA(comp.Industry), orNA(comp.Website),
		orNA(strings.Join(comp.Strengths, "\n")), orNA(strings.Join(comp.Weaknesses, "\n")),
		indentJSON(recent), competitorSchema)

	res, err := a.generate(ctx, prompt, 2000, 0.6)
	if err != nil {
		return nil, err
	}
	analysis, err := extract[CompetitorAnalysis](ctx, a.caps, res.Text, competitorSchema)
	if err != nil {
		return nil, err
	}
	analysis.Strengths = nonNil(analysis.Strengths)
	analysis.Weaknesses = nonNil(analysis.Weaknesses)
	analysis.Differentiation = nonNil(analysis.Differentiation)

	return &Result{
		Output:    map[string]any{"analysis": analysis, "competitorId": comp.ID},
		Reasoning: "Analyzed competitor data, insights, and market position to provide comprehensive competitive intelligence.",
		Metadata:  usageMetadata(res),
	}, nil
}

// MarketResearch is the extracted research brief.
type MarketResearch struct {
	MarketOverview  string   `json:"marketOverview"`
	MarketSize      string   `json:"marketSize"`
	Trends          []string `json:"trends"`
	Drivers         []string `json:"drivers"`
	Segments        []string `json:"segments"`
	Opportunities   []string `json:"opportunities"`
	Threats         []string `json:"threats"`
	Recommendations []string `json:"recommendations"`
}

const researchSchema = `{
  "marketOverview": "string",
  "marketSize": "string",
  "trends": ["string"],
  "drivers": ["string"],
  "segments": ["string"],
  "opportunities": ["string"],
  "threats": ["string"],
  "recommendations": ["string"]
}`

func (a *CompetitiveAgent) marketResearch(ctx context.Context, organizationID, topic string) (*Result, error) {
	orgName, err := organizationName(ctx, a.data, organizationID)
	if err != nil {
		return nil, err
	}
	comps, err := a.data.ListCompetitors(ctx, organizationID, 10)
	if err != nil {
		return nil, fmt.Errorf("loading competitors: %w", err)
	}
	known := make([]string, 0, len(comps))
	for _, c := range comps {
		known = append(known, fmt.Sprintf("%s - %s", c.Name, orNA(c.Industry)))
	}

	prompt := fmt.Sprintf(`Research a market topic.

Organization: %s
Topic: %s

Known competitors:
%s

Describe the market and its size, trends and drivers, customer segments, opportunities, threats, and what we should do.

Answer as JSON:
%s`, orNA(orgName), topic, orNA(strings.Join(known, "\n")), researchSchema)

	res, err := a.generate(ctx, prompt, 2000, 0.7)
	if err != nil {
		return nil, err
	}
	research, err := extract[MarketResearch](ctx, a.caps, res.Text, researchSchema)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output:    map[string]any{"research": research, "topic": topic},
		Reasoning: "Conducted market research using available data and competitive intelligence to provide strategic insights.",
		Metadata:  usageMetadata(res),
	}, nil
}

// Positioning is the extracted positioning strategy.
type Positioning struct {
	CurrentPosition     string   `json:"currentPosition"`
	Advantages          []string `json:"advantages"`
	Vulnerabilities     []string `json:"vulnerabilities"`
	PositioningStrategy string   `json:"positioningStrategy"`
	Differentiation     []string `json:"differentiation"`
	Recommendations     []string `json:"recommendations"`
}

const positioningSchema = `{
  "currentPosition": "string",
  "advantages": ["string"],
  "vulnerabilities": ["string"],
  "positioningStrategy": "string",
  "differentiation": ["string"],
  "recommendations": ["string"]
}`

func (a *CompetitiveAgent) competitivePositioning(ctx context.Context, organizationID string) (*Result, error) {
	org, err := a.data.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, lookupError("Organization", organizationID, err)
	}
	comps, err := a.data.ListCompetitors(ctx, organizationID, 0)
	if err != nil {
		return nil, fmt.Errorf("loading competitors: %w", err)
	}
	landscape := make([]map[string]any, 0, len(comps))
	for _, c := range comps {
		insights, err := a.data.CompetitorInsights(ctx, c.ID, 5)
		if err != nil {
			return nil, fmt.Errorf("loading competitor insights: %w", err)
		}
		titles := make([]string, 0, len(insights))
		for _, in := range insights {
			titles = append(titles, in.Title)
		}
		landscape = append(landscape, map[string]any{
			"name":           c.Name,
			"industry":       c.Industry,
			"strengths":      nonNil(c.Strengths),
			"weaknesses":     nonNil(c.Weaknesses),
			"recentInsights": titles,
		})
	}

	prompt := fmt.Sprintf(`Work out the competitive positioning for %s.

Competitors:
%s

Describe our current position, advantages and vulnerabilities, a positioning strategy, differentiation opportunities and strategic recommendations.

Answer as JSON:
%s`, org.Name, indentJSON(landscape), positioningSchema)

	res, err := a.generate(ctx, prompt, 2000, 0.7)
	if err != nil {
		return nil, err
	}
	pos, err := extract[Positioning](ctx, a.caps, res.Text, positioningSchema)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output:    map[string]any{"positioning": pos},
		Reasoning: "Analyzed competitive landscape to determine optimal market positioning and differentiation strategy.",
		Metadata:  usageMetadata(res),
	}, nil
}
