package agent

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Navneet-55/msmesolut/internal/llm"
	"github.com/Navneet-55/msmesolut/internal/store"
)

// noBurnRunwayDays is reported when the window holds no expenses.
const noBurnRunwayDays = 999

// FinancialAgent forecasts, analyzes cash flow and flags anomalies.
type FinancialAgent struct {
	base
	data FinanceStore
}

// NewFinancialAgent creates the financial agent.
func NewFinancialAgent(data FinanceStore, caps *llm.Capabilities) *FinancialAgent {
	return &FinancialAgent{base: newBase(caps), data: data}
}

// Type returns Financial.
func (a *FinancialAgent) Type() Type { return Financial }

// Execute runs one financial action.
func (a *FinancialAgent) Execute(ctx context.Context, organizationID string, in Input) (*Result, error) {
	action, err := prepare(Financial, in)
	if err != nil {
		return nil, err
	}
	switch action {
	case ActionGenerateForecast:
		return a.generateForecast(ctx, organizationID, in.StringOr("period", "quarterly"), in.StringOr("forecastType", "revenue"))
	case ActionAnalyzeCashFlow:
		return a.analyzeCashFlow(ctx, organizationID)
	case ActionDetectAnomalies:
		return a.detectAnomalies(ctx, organizationID)
	}
	return nil, &UnknownActionError{Action: in.Action}
}

// Forecast is the extracted financial forecast.
type Forecast struct {
	Forecast        []ForecastPoint `json:"forecast"`
	Assumptions     []string        `json:"assumptions"`
	Risks           []string        `json:"risks"`
	Recommendations []string        `json:"recommendations"`
}

// ForecastPoint is one forecast period with its interval.
type ForecastPoint struct {
	Period     string  `json:"period"`
	Predicted  float64 `json:"predicted"`
	Confidence float64 `json:"confidence"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
}

const forecastSchema = `{
  "forecast": [{"period": "string", "predicted": "number", "confidence": "number", "lower": "number", "upper": "number"}],
  "assumptions": ["string"],
  "risks": ["string"],
  "recommendations": ["string"]
}`

// monthlyTotals sums transaction amounts per YYYY-MM.
func monthlyTotals(txs []store.Transaction) map[string]float64 {
	out := make(map[string]float64)
	for _, t := range txs {
		out[t.Date.UTC().Format("2006-01")] += t.Amount
	}
	return out
}

func (a *FinancialAgent) generateForecast(ctx context.Context, organizationID, period, forecastType string) (*Result, error) {
	txType := store.TxExpense
	if forecastType == "revenue" {
		txType = store.TxIncome
	}
	txs, err := a.data.Transactions(ctx, organizationID, store.TransactionFilter{Since: a.since(365), Type: txType})
	if err != nil {
		return nil, fmt.Errorf("loading transactions: %w", err)
	}

	totals := monthlyTotals(txs)
	months := make([]string, 0, len(totals))
	for m := range totals {
		months = append(months, m)
	}
	sort.Strings(months)
	history := make([]map[string]any, 0, len(months))
	for _, m := range months {
		history = append(history, map[string]any{"month": m, "amount": totals[m]})
	}

	prompt := fmt.Sprintf(`Produce a %s %s forecast.

Monthly history for the last 12 months:
%s

For each upcoming period give the predicted amount, a confidence between 0 and 1, and lower and upper bounds. List the assumptions, risks and recommendations.

Answer as JSON:
%s`, period, forecastType, indentJSON(history), forecastSchema)

	res, err := a.generate(ctx, prompt, 2000, 0.5)
	if err != nil {
		return nil, err
	}
	fc, err := extract[Forecast](ctx, a.caps, res.Text, forecastSchema)
	if err != nil {
		return nil, err
	}
	fc.Forecast = nonNil(fc.Forecast)
	fc.Assumptions = nonNil(fc.Assumptions)
	fc.Risks = nonNil(fc.Risks)
	fc.Recommendations = nonNil(fc.Recommendations)

	return &Result{
		Output:    map[string]any{"forecast": fc, "period": period, "type": forecastType},
		Reasoning: fmt.Sprintf("Generated %s forecast based on historical trends, seasonality patterns, and business context.", period),
		Metadata:  usageMetadata(res),
	}, nil
}

// CashFlowMetrics summarizes a cash flow window.
type CashFlowMetrics struct {
	Income      float64 `json:"income"`
	Expenses    float64 `json:"expenses"`
	NetCashFlow float64 `json:"netCashFlow"`
	RunwayDays  int     `json:"runwayDays"`
}

// ComputeCashFlow totals txs over a window of days. Runway is net cash
// divided by the average daily expense, floored; 999 when there are no
// expenses.
func ComputeCashFlow(txs []store.Transaction, days int) CashFlowMetrics {
	fs := store.Summarize(txs)
	m := CashFlowMetrics{Income: fs.Revenue, Expenses: fs.Expenses, NetCashFlow: fs.Net, RunwayDays: noBurnRunwayDays}
	if days > 0 {
		if burn := fs.Expenses / float64(days); burn > 0 {
			m.RunwayDays = int(math.Floor(fs.Net / burn))
		}
	}
	return m
}

func (a *FinancialAgent) analyzeCashFlow(ctx context.Context, organizationID string) (*Result, error) {
	const window = 90
	txs, err := a.data.Transactions(ctx, organizationID, store.TransactionFilter{Since: a.since(window)})
	if err != nil {
		return nil, fmt.Errorf("loading transactions: %w", err)
	}
	m := ComputeCashFlow(txs, window)

	prompt := fmt.Sprintf(`Assess this organization's cash flow over the last %d days.

Income: $%.2f
Expenses: $%.2f
Net cash flow: $%.2f
Runway at the current burn rate: %d days
Transactions recorded: %d

Describe the overall health, the trend, risks, and concrete recommendations to improve cash flow.`,
		window, m.Income, m.Expenses, m.NetCashFlow, m.RunwayDays, len(txs))

	res, err := a.generate(ctx, prompt, 1000, 0.6)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output:    map[string]any{"analysis": res.Text, "metrics": m},
		Reasoning: "Analyzed cash flow patterns to assess financial health and provide actionable recommendations.",
		Metadata:  usageMetadata(res),
	}, nil
}

// Anomaly is one flagged transaction pattern.
type Anomaly struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
}

type anomalyReport struct {
	Anomalies       []Anomaly `json:"anomalies"`
	Recommendations []string  `json:"recommendations"`
}

const anomalySchema = `{
  "anomalies": [{"type": "string", "description": "string", "severity": "low|medium|high", "date": "string", "amount": "number"}],
  "recommendations": ["string"]
}`

func (a *FinancialAgent) detectAnomalies(ctx context.Context, organizationID string) (*Result, error) {
	txs, err := a.data.Transactions(ctx, organizationID, store.TransactionFilter{Since: a.since(180)})
	if err != nil {
		return nil, fmt.Errorf("loading transactions: %w", err)
	}
	rows := make([]map[string]any, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, map[string]any{
			"date":        t.Date.UTC().Format("2006-01-02"),
			"type":        t.Type,
			"category":    t.Category,
			"amount":      t.Amount,
			"description": t.Description,
		})
	}

	prompt := fmt.Sprintf(`Look for anomalies in these transactions from the last 180 days: unusual amounts, duplicates, irregular timing, category outliers and signs of fraud.

%s

Answer as JSON:
%s`, indentJSON(rows), anomalySchema)

	res, err := a.generate(ctx, prompt, 1500, 0.4)
	if err != nil {
		return nil, err
	}
	report, err := extract[anomalyReport](ctx, a.caps, res.Text, anomalySchema)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output: map[string]any{
			"anomalies":       nonNil(report.Anomalies),
			"recommendations": nonNil(report.Recommendations),
		},
		Reasoning: "Analyzed transaction patterns using statistical methods to identify anomalies and potential issues.",
		Metadata:  usageMetadata(res),
	}, nil
}
