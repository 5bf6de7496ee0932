package agent

import (
	"fmt"
	"slices"

	"github.com/Navneet-55/msmesolut/internal/store"
)

// Type identifies one of the domain agents.
type Type string

// Agent types.
const (
	CustomerSupport Type = "customer_support"
	Marketing       Type = "marketing"
	Financial       Type = "financial"
	SupplyChain     Type = "supply_chain"
	Onboarding      Type = "onboarding"
	Competitive     Type = "competitive"
	DataIntegration Type = "data_integration"
	SalesLead       Type = "sales_lead"
)

var allTypes = []Type{
	CustomerSupport, Marketing, Financial, SupplyChain,
	Onboarding, Competitive, DataIntegration, SalesLead,
}

// Types returns every agent type in declaration order.
func Types() []Type {
	return slices.Clone(allTypes)
}

// ParseType maps s onto a Type. Anything outside the closed set is
// ErrUnknownAgentType.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownAgentType, s)
	}
	return t, nil
}

// Valid reports whether t is one of the declared types.
func (t Type) Valid() bool {
	return slices.Contains(allTypes, t)
}

// EntityField is the agent_runs column a run of this type is linked through,
// or "" when the type has no entity link.
func (t Type) EntityField() string {
	switch t {
	case CustomerSupport:
		return store.LinkTicket
	case Marketing:
		return store.LinkCampaign
	case SalesLead:
		return store.LinkLead
	case Financial, SupplyChain, Onboarding, Competitive, DataIntegration:
		return ""
	}
	return ""
}

// Actions lists the actions an agent of this type supports.
func (t Type) Actions() []Action {
	switch t {
	case CustomerSupport:
		return []Action{ActionAnalyzeSentiment, ActionGenerateResponse, ActionSuggestSolution}
	case Marketing:
		return []Action{ActionGenerateContent, ActionCreateCampaign, ActionOptimizeCampaign}
	case Financial:
		return []Action{ActionGenerateForecast, ActionAnalyzeCashFlow, ActionDetectAnomalies}
	case SupplyChain:
		return []Action{ActionOptimizeInventory, ActionForecastDemand, ActionSuggestReorder}
	case Onboarding:
		return []Action{ActionCreatePlan, ActionGenerateTraining, ActionAssessProgress}
	case Competitive:
		return []Action{ActionAnalyzeCompetitor, ActionMarketResearch, ActionCompetitivePositioning}
	case DataIntegration:
		return []Action{ActionAnalyzeData, ActionSuggestInsights, ActionCreateDashboard}
	case SalesLead:
		return []Action{ActionQualifyLead, ActionEnrichLead, ActionScoreLead}
	}
	return nil
}

// Action names one behavior of an agent.
type Action string

// customer_support
const (
	ActionAnalyzeSentiment Action = "analyze_sentiment"
	ActionGenerateResponse Action = "generate_response"
	ActionSuggestSolution  Action = "suggest_solution"
)

// marketing
const (
	ActionGenerateContent  Action = "generate_content"
	ActionCreateCampaign   Action = "create_campaign"
	ActionOptimizeCampaign Action = "optimize_campaign"
)

// financial
const (
	ActionGenerateForecast Action = "generate_forecast"
	ActionAnalyzeCashFlow  Action = "analyze_cash_flow"
	ActionDetectAnomalies  Action = "detect_anomalies"
)

// supply_chain
const (
	ActionOptimizeInventory Action = "optimize_inventory"
	ActionForecastDemand    Action = "forecast_demand"
	ActionSuggestReorder    Action = "suggest_reorder"
)

// onboarding
const (
	ActionCreatePlan       Action = "create_plan"
	ActionGenerateTraining Action = "generate_training"
	ActionAssessProgress   Action = "assess_progress"
)

// competitive
const (
	ActionAnalyzeCompetitor      Action = "analyze_competitor"
	ActionMarketResearch         Action = "market_research"
	ActionCompetitivePositioning Action = "competitive_positioning"
)

// data_integration
const (
	ActionAnalyzeData     Action = "analyze_data"
	ActionSuggestInsights Action = "suggest_insights"
	ActionCreateDashboard Action = "create_dashboard"
)

// sales_lead
const (
	ActionQualifyLead Action = "qualify_lead"
	ActionEnrichLead  Action = "enrich_lead"
	ActionScoreLead   Action = "score_lead"
)

// ParseAction matches s exactly against the actions of t.
func ParseAction(t Type, s string) (Action, error) {
	a := Action(s)
	if !slices.Contains(t.Actions(), a) {
		return "", &UnknownActionError{Action: s}
	}
	return a, nil
}
