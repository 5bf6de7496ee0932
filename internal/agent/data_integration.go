package agent

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Navneet-55/msmesolut/internal/llm"
	"github.com/Navneet-55/msmesolut/internal/store"
)

// DataIntegrationAgent turns raw and aggregated data into insights.
type DataIntegrationAgent struct {
	base
	data InsightStore
}

// NewDataIntegrationAgent creates the data_integration agent.
func NewDataIntegrationAgent(data InsightStore, caps *llm.Capabilities) *DataIntegrationAgent {
	return &DataIntegrationAgent{base: newBase(caps), data: data}
}

// Type returns DataIntegration.
func (a *DataIntegrationAgent) Type() Type { return DataIntegration }

// Execute runs one data integration action.
func (a *DataIntegrationAgent) Execute(ctx context.Context, organizationID string, in Input) (*Result, error) {
	action, err := prepare(DataIntegration, in)
	if err != nil {
		return nil, err
	}
	switch action {
	case ActionAnalyzeData:
		return a.analyzeData(ctx, in.Fields["data"])
	case ActionSuggestInsights:
		return a.suggestInsights(ctx, organizationID)
	case ActionCreateDashboard:
		return a.createDashboard(ctx, in.String("dashboardType"), in.Strings("metrics"))
	}
	return nil, &UnknownActionError{Action: in.Action}
}

// DataAnalysis is the extracted dataset review.
type DataAnalysis struct {
	Quality struct {
		Completeness float64  `json:"completeness"`
		Accuracy     float64  `json:"accuracy"`
		Issues       []string `json:"issues"`
	} `json:"quality"`
	Summary struct {
		Rows       float64        `json:"rows"`
		Columns    float64        `json:"columns"`
		Statistics map[string]any `json:"statistics"`
	} `json:"summary"`
	Patterns        []string `json:"patterns"`
	Anomalies       []string `json:"anomalies"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

const dataAnalysisSchema = `{
  "quality": {"completeness": "number 0-1", "accuracy": "number 0-1", "issues": ["string"]},
  "summary": {"rows": "number", "columns": "number", "statistics": {}},
  "patterns": ["string"],
  "anomalies": ["string"],
  "insights": ["string"],
  "recommendations": ["string"]
}`

func (a *DataIntegrationAgent) analyzeData(ctx context.Context, data any) (*Result, error) {
	prompt := fmt.Sprintf(`Analyze this dataset.

%s

Assess data quality, summarize it statistically, and report patterns, anomalies, business insights and recommendations.

Answer as JSON:
%s`, indentJSON(data), dataAnalysisSchema)

	res, err := a.generate(ctx, prompt, 2000, 0.5)
	if err != nil {
		return nil, err
	}
	analysis, err := extract[DataAnalysis](ctx, a.caps, res.Text, dataAnalysisSchema)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output:    map[string]any{"analysis": analysis},
		Reasoning: "Analyzed dataset using statistical methods and pattern recognition to extract actionable insights.",
		Metadata:  usageMetadata(res),
	}, nil
}

// BusinessSnapshot aggregates the last 90 days across finance, sales and support.
type BusinessSnapshot struct {
	Revenue         float64 `json:"revenue"`
	Expenses        float64 `json:"expenses"`
	Net             float64 `json:"net"`
	Orders          int     `json:"orders"`
	OrderValue      float64 `json:"orderValue"`
	Tickets         int     `json:"tickets"`
	OpenTickets     int     `json:"openTickets"`
	ResolvedTickets int     `json:"resolvedTickets"`
}

// Snapshot computes a BusinessSnapshot from already-loaded rows.
func Snapshot(txs []store.Transaction, orders []store.Order, tickets []store.Ticket) BusinessSnapshot {
	fs := store.Summarize(txs)
	s := BusinessSnapshot{Revenue: fs.Revenue, Expenses: fs.Expenses, Net: fs.Net, Orders: len(orders), Tickets: len(tickets)}
	for _, o := range orders {
		s.OrderValue += o.Total
	}
	for _, t := range tickets {
		switch t.Status {
		case "open":
			s.OpenTickets++
		case "resolved":
			s.ResolvedTickets++
		}
	}
	return s
}

// KPI is one generated indicator.
type KPI struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Trend   string  `json:"trend"`
	Insight string  `json:"insight"`
}

// BusinessInsights is the extracted intelligence brief.
type BusinessInsights struct {
	KPIs            []KPI    `json:"kpis"`
	Trends          []string `json:"trends"`
	Opportunities   []string `json:"opportunities"`
	Risks           []string `json:"risks"`
	Recommendations []string `json:"recommendations"`
	Metrics         []string `json:"metrics"`
}

const insightsSchema = `{
  "kpis": [{"name": "string", "value": "number", "trend": "up|down|stable", "insight": "string"}],
  "trends": ["string"],
  "opportunities": ["string"],
  "risks": ["string"],
  "recommendations": ["string"],
  "metrics": ["string"]
}`

func (a *DataIntegrationAgent) suggestInsights(ctx context.Context, organizationID string) (*Result, error) {
	since := a.since(90)

	var (
		txs     []store.Transaction
		orders  []store.Order
		tickets []store.Ticket
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = a.data.Transactions(gctx, organizationID, store.TransactionFilter{Since: since})
		return err
	})
	g.Go(func() error {
		var err error
		orders, err = a.data.OrdersSince(gctx, organizationID, since, 0)
		return err
	})
	g.Go(func() error {
		var err error
		tickets, err = a.data.TicketsSince(gctx, organizationID, since, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading business data: %w", err)
	}
	snap := Snapshot(txs, orders, tickets)

	prompt := fmt.Sprintf(`Derive business intelligence from the last 90 days.

Financial:
- Revenue: $%.2f
- Expenses: $%.2f
- Net: $%.2f

Orders: %d (total value $%.2f)

Support tickets: %d
- Open: %d
- Resolved: %d

Report key performance indicators with their trend, patterns, opportunities, risks, recommendations and metrics worth tracking.

Answer as JSON:
%s`, snap.Revenue, snap.Expenses, snap.Net, snap.Orders, snap.OrderValue,
		snap.Tickets, snap.OpenTickets, snap.ResolvedTickets, insightsSchema)

	res, err := a.generate(ctx, prompt, 2000, 0.6)
	if err != nil {
		return nil, err
	}
	insights, err := extract[BusinessInsights](ctx, a.caps, res.Text, insightsSchema)
	if err != nil {
		return nil, err
	}
	insights.KPIs = nonNil(insights.KPIs)

	meta := usageMetadata(res)
	meta["snapshot"] = snap
	return &Result{
		Output:    map[string]any{"insights": insights},
		Reasoning: "Analyzed cross-functional data to generate comprehensive business intelligence insights and recommendations.",
		Metadata:  meta,
	}, nil
}

// DashboardSection is one panel of a designed dashboard.
type DashboardSection struct {
	Title         string `json:"title"`
	Type          string `json:"type"`
	DataSource    string `json:"dataSource"`
	Visualization string `json:"visualization"`
}

// DashboardDesign is the extracted dashboard layout.
type DashboardDesign struct {
	Layout struct {
		Sections []DashboardSection `json:"sections"`
	} `json:"layout"`
	Metrics          []string `json:"metrics"`
	RefreshFrequency string   `json:"refreshFrequency"`
	UseCases         []string `json:"useCases"`
}

const dashboardSchema = `{
  "layout": {"sections": [{"title": "string", "type": "chart|table|metric", "dataSource": "string", "visualization": "string"}]},
  "metrics": ["string"],
  "refreshFrequency": "string",
  "useCases": ["string"]
}`

func (a *DataIntegrationAgent) createDashboard(ctx context.Context, dashboardType string, metrics []string) (*Result, error) {
	kind := dashboardType
	if kind == "" {
		kind = "executive"
	}
	wanted := "all key metrics"
	if len(metrics) > 0 {
		wanted = strings.Join(metrics, ", ")
	}

	prompt := fmt.Sprintf(`Design a %s business intelligence dashboard covering %s.

Lay out the sections with a visualization and data source each, list the KPIs, suggest a refresh frequency and describe who uses it and for what.

Answer as JSON:
%s`, kind, wanted, dashboardSchema)

	res, err := a.generate(ctx, prompt, 2000, 0.7)
	if err != nil {
		return nil, err
	}
	design, err := extract[DashboardDesign](ctx, a.caps, res.Text, dashboardSchema)
	if err != nil {
		return nil, err
	}
	design.Layout.Sections = nonNil(design.Layout.Sections)

	return &Result{
		Output:    map[string]any{"dashboard": design, "type": dashboardType},
		Reasoning: "Designed dashboard layout and visualizations optimized for the specified dashboard type and user needs.",
		Metadata:  usageMetadata(res),
	}, nil
}
