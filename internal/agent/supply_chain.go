package agent

import (
	"context"
	"fmt"

	"github.com/Navneet-55/msmesolut/internal/llm"
	"github.com/Navneet-55/msmesolut/internal/store"
)

// reorderHeadroom flags items whose stock is within 20% of the minimum.
const reorderHeadroom = 1.2

// SupplyChainAgent plans stock levels and reorders.
type SupplyChainAgent struct {
	base
	data SupplyStore
}

// NewSupplyChainAgent creates the supply_chain agent.
func NewSupplyChainAgent(data SupplyStore, caps *llm.Capabilities) *SupplyChainAgent {
	return &SupplyChainAgent{base: newBase(caps), data: data}
}

// Type returns SupplyChain.
func (a *SupplyChainAgent) Type() Type { return SupplyChain }

// Execute runs one supply chain action.
func (a *SupplyChainAgent) Execute(ctx context.Context, organizationID string, in Input) (*Result, error) {
	action, err := prepare(SupplyChain, in)
	if err != nil {
		return nil, err
	}
	switch action {
	case ActionOptimizeInventory:
		return a.optimizeInventory(ctx, organizationID)
	case ActionForecastDemand:
		return a.forecastDemand(ctx, organizationID, in.String("productId"))
	case ActionSuggestReorder:
		return a.suggestReorder(ctx, organizationID)
	}
	return nil, &UnknownActionError{Action: in.Action}
}

// DemandBySKU sums ordered quantities per SKU.
func DemandBySKU(lines []store.OrderLine) map[string]int {
	out := make(map[string]int)
	for _, l := range lines {
		out[l.SKU] += l.Quantity
	}
	return out
}

// MonthlyDemand sums ordered quantities per YYYY-MM and SKU.
func MonthlyDemand(lines []store.OrderLine) map[string]map[string]int {
	out := make(map[string]map[string]int)
	for _, l := range lines {
		month := l.OrderedAt.UTC().Format("2006-01")
		if out[month] == nil {
			out[month] = make(map[string]int)
		}
		out[month][l.SKU] += l.Quantity
	}
	return out
}

// LowStock returns items at or near their minimum stock.
func LowStock(items []store.InventoryItem) []store.InventoryItem {
	out := []store.InventoryItem{}
	for _, it := range items {
		if it.Quantity <= it.MinStock || float64(it.Quantity) < float64(it.MinStock)*reorderHeadroom {
			out = append(out, it)
		}
	}
	return out
}

// StockRecommendation is one SKU's target level.
type StockRecommendation struct {
	SKU              string  `json:"sku"`
	CurrentStock     float64 `json:"currentStock"`
	RecommendedStock float64 `json:"recommendedStock"`
	ReorderPoint     float64 `json:"reorderPoint"`
	Reason           string  `json:"reason"`
}

type inventoryPlan struct {
	Recommendations []StockRecommendation `json:"recommendations"`
	ABCAnalysis     map[string]any        `json:"abcAnalysis"`
	DeadStock       []string              `json:"deadStock"`
}

const inventorySchema = `{
  "recommendations": [{"sku": "string", "currentStock": "number", "recommendedStock": "number", "reorderPoint": "number", "reason": "string"}],
  "abcAnalysis": {"A": ["sku"], "B": ["sku"], "C": ["sku"]},
  "deadStock": ["sku"]
}`

func (a *SupplyChainAgent) optimizeInventory(ctx context.Context, organizationID string) (*Result, error) {
	items, err := a.data.Inventory(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("loading inventory: %w", err)
	}
	lines, err := a.data.OrderLinesSince(ctx, organizationID, a.since(90), "")
	if err != nil {
		return nil, fmt.Errorf("loading order history: %w", err)
	}
	demand := DemandBySKU(lines)

	rows := make([]map[string]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, map[string]any{
			"product":      it.ProductName,
			"sku":          it.SKU,
			"currentStock": it.Quantity,
			"minStock":     it.MinStock,
			"maxStock":     it.MaxStock,
			"location":     it.Location,
			"demand90d":    demand[it.SKU],
		})
	}

	prompt := fmt.Sprintf(`Optimize inventory levels.

Current inventory with 90-day demand:
%s

Recommend a target stock level and reorder point per SKU, classify SKUs with an ABC analysis, and list dead stock.

Answer as JSON:
%s`, indentJSON(rows), inventorySchema)

	res, err := a.generate(ctx, prompt, 2000, 0.5)
	if err != nil {
		return nil, err
	}
	plan, err := extract[inventoryPlan](ctx, a.caps, res.Text, inventorySchema)
	if err != nil {
		return nil, err
	}
	if plan.ABCAnalysis == nil {
		plan.ABCAnalysis = map[string]any{}
	}
	return &Result{
		Output: map[string]any{
			"recommendations": nonNil(plan.Recommendations),
			"abcAnalysis":     plan.ABCAnalysis,
			"deadStock":       nonNil(plan.DeadStock),
		},
		Reasoning: "Analyzed inventory levels, demand patterns, and cost factors to optimize stock levels and reduce carrying costs.",
		Metadata:  usageMetadata(res),
	}, nil
}

// DemandForecast is one SKU-month prediction.
type DemandForecast struct {
	SKU             string  `json:"sku"`
	Month           string  `json:"month"`
	PredictedDemand float64 `json:"predictedDemand"`
	Confidence      float64 `json:"confidence"`
}

type demandPlan struct {
	Forecast        []DemandForecast `json:"forecast"`
	Trends          map[string]any   `json:"trends"`
	Recommendations []string         `json:"recommendations"`
}

const demandSchema = `{
  "forecast": [{"sku": "string", "month": "YYYY-MM", "predictedDemand": "number", "confidence": "number"}],
  "trends": {"sku": "string describing the trend"},
  "recommendations": ["string"]
}`

func (a *SupplyChainAgent) forecastDemand(ctx context.Context, organizationID, productID string) (*Result, error) {
	lines, err := a.data.OrderLinesSince(ctx, organizationID, a.since(180), productID)
	if err != nil {
		return nil, fmt.Errorf("loading order history: %w", err)
	}
	scope := "all products"
	if productID != "" {
		scope = "product " + productID
	}

	prompt := fmt.Sprintf(`Forecast demand for the next three months for %s.

Monthly units sold per SKU over the last 180 days:
%s

Account for trend and seasonality. Give a per-SKU monthly prediction with confidence, describe the trend per SKU, and add recommendations.

Answer as JSON:
%s`, scope, indentJSON(MonthlyDemand(lines)), demandSchema)

	res, err := a.generate(ctx, prompt, 2000, 0.5)
	if err != nil {
		return nil, err
	}
	plan, err := extract[demandPlan](ctx, a.caps, res.Text, demandSchema)
	if err != nil {
		return nil, err
	}
	if plan.Trends == nil {
		plan.Trends = map[string]any{}
	}
	return &Result{
		Output: map[string]any{
			"forecast":        nonNil(plan.Forecast),
			"trends":          plan.Trends,
			"recommendations": nonNil(plan.Recommendations),
		},
		Reasoning: "Forecasted demand using historical sales data, seasonal patterns, and trend analysis.",
		Metadata:  usageMetadata(res),
	}, nil
}

// Reorder is one suggested purchase.
type Reorder struct {
	SKU              string  `json:"sku"`
	CurrentStock     float64 `json:"currentStock"`
	RecommendedOrder float64 `json:"recommendedOrder"`
	Cost             float64 `json:"cost"`
	Priority         string  `json:"priority"`
}

type reorderPlan struct {
	Reorders        []Reorder `json:"reorders"`
	TotalCost       float64   `json:"totalCost"`
	Recommendations []string  `json:"recommendations"`
}

const reorderSchema = `{
  "reorders": [{"sku": "string", "currentStock": "number", "recommendedOrder": "number", "cost": "number", "priority": "high|medium|low"}],
  "totalCost": "number",
  "recommendations": ["string"]
}`

func (a *SupplyChainAgent) suggestReorder(ctx context.Context, organizationID string) (*Result, error) {
	items, err := a.data.Inventory(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("loading inventory: %w", err)
	}
	low := LowStock(items)
	rows := make([]map[string]any, 0, len(low))
	for _, it := range low {
		rows = append(rows, map[string]any{
			"product":      it.ProductName,
			"sku":          it.SKU,
			"currentStock": it.Quantity,
			"minStock":     it.MinStock,
			"maxStock":     it.MaxStock,
		})
	}

	prompt := fmt.Sprintf(`Suggest reorder quantities for these low-stock items.

%s

Bring each item back to a healthy level without exceeding its maximum, prioritize by stock-out risk, and estimate the total cost.

Answer as JSON:
%s`, indentJSON(rows), reorderSchema)

	res, err := a.generate(ctx, prompt, 1500, 0.5)
	if err != nil {
		return nil, err
	}
	plan, err := extract[reorderPlan](ctx, a.caps, res.Text, reorderSchema)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output: map[string]any{
			"reorders":        nonNil(plan.Reorders),
			"totalCost":       plan.TotalCost,
			"recommendations": nonNil(plan.Recommendations),
		},
		Reasoning: "Analyzed inventory levels against min/max thresholds and demand patterns to suggest optimal reorder quantities.",
		Metadata:  usageMetadata(res),
	}, nil
}
