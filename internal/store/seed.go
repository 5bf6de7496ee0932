package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Demo account created by Seed.
const (
	DemoEmail    = "demo@lumina.ai"
	DemoPassword = "demo123"
	DemoOrgSlug  = "demo-org"
)

// SeedResult identifies the rows Seed created, so callers can point agents
// at them.
type SeedResult struct {
	OrganizationID string   `json:"organizationId"`
	UserID         string   `json:"userId"`
	TicketIDs      []string `json:"ticketIds"`
	CampaignID     string   `json:"campaignId"`
	LeadIDs        []string `json:"leadIds"`
	ProductIDs     []string `json:"productIds"`
	EmployeeID     string   `json:"employeeId"`
	CompetitorID   string   `json:"competitorId"`
}

// ErrAlreadySeeded is returned by Seed when the demo account exists.
var ErrAlreadySeeded = errors.New("database already seeded")

// Seed inserts the demo organization, the demo user and sample data for every
// agent. It refuses to run twice.
func (s *Store) Seed(ctx context.Context) (*SeedResult, error) {
	ctx, span := tracer.Start(ctx, "store.seed")
	defer span.End()

	if _, err := s.GetUserByEmail(ctx, DemoEmail); err == nil {
		return nil, ErrAlreadySeeded
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing demo password: %w", err)
	}

	res := &SeedResult{}
	var sd seeder

	user := &User{Email: DemoEmail, Name: "Demo User", PasswordHash: string(hash)}
	sd.do(s.CreateUser(ctx, user))
	org := &Organization{Name: "Demo Organization", Slug: DemoOrgSlug, Plan: "pro"}
	sd.do(s.CreateOrganization(ctx, org))
	if sd.err != nil {
		return nil, sd.err
	}
	res.UserID, res.OrganizationID = user.ID, org.ID
	sd.do(s.AddMember(ctx, user.ID, org.ID, RoleOwner))

	acme := &Customer{OrganizationID: org.ID, Name: "Acme Corp", Email: "contact@acme.com", Phone: "+1-555-0100",
		Company: "Acme Corporation", Tags: []string{"enterprise", "priority"}}
	techstart := &Customer{OrganizationID: org.ID, Name: "TechStart Inc", Email: "hello@techstart.io", Phone: "+1-555-0101",
		Company: "TechStart Inc", Tags: []string{"startup", "tech"}}
	sd.do(s.CreateCustomer(ctx, acme))
	sd.do(s.CreateCustomer(ctx, techstart))

	t1 := &Ticket{OrganizationID: org.ID, CustomerID: acme.ID, Number: "TKT-001", Subject: "Product inquiry",
		Description: "Interested in learning more about your enterprise features.", Status: "open", Priority: "high", Category: "sales"}
	t2 := &Ticket{OrganizationID: org.ID, CustomerID: techstart.ID, Number: "TKT-002", Subject: "Technical support needed",
		Description: "Having issues with API integration.", Status: "in_progress", Priority: "medium", Category: "support"}
	sd.do(s.CreateTicket(ctx, t1))
	sd.do(s.CreateTicket(ctx, t2))
	res.TicketIDs = []string{t1.ID, t2.ID}
	sd.do(s.AddTicketMessage(ctx, &TicketMessage{TicketID: t1.ID, Sender: SenderCustomer,
		Content: "Could you share pricing for the enterprise tier and SSO support?"}))
	sd.do(s.AddTicketMessage(ctx, &TicketMessage{TicketID: t2.ID, Sender: SenderCustomer,
		Content: "Our webhook calls keep failing with 401 since this morning. This is blocking our release."}))

	widgetA := &Product{OrganizationID: org.ID, Name: "Premium Widget", SKU: "WID-001",
		Description: "High-quality widget for enterprise use", Category: "Widgets", Price: 99.99, Cost: 50.00}
	widgetB := &Product{OrganizationID: org.ID, Name: "Standard Widget", SKU: "WID-002",
		Description: "Standard widget for general use", Category: "Widgets", Price: 49.99, Cost: 25.00}
	sd.do(s.CreateProduct(ctx, widgetA))
	sd.do(s.CreateProduct(ctx, widgetB))
	res.ProductIDs = []string{widgetA.ID, widgetB.ID}
	sd.do(s.CreateInventoryItem(ctx, &InventoryItem{OrganizationID: org.ID, ProductID: widgetA.ID,
		Quantity: 120, MinStock: 20, MaxStock: 200, Location: "Warehouse A"}))
	sd.do(s.CreateInventoryItem(ctx, &InventoryItem{OrganizationID: org.ID, ProductID: widgetB.ID,
		Quantity: 18, MinStock: 20, MaxStock: 200, Location: "Warehouse A"}))

	now := s.clock()
	sd.do(s.CreateOrder(ctx, &Order{OrganizationID: org.ID, CustomerID: acme.ID, Number: "ORD-001", Status: "delivered",
		Total: 299.97, CreatedAt: now.AddDate(0, 0, -20),
		Items: []OrderItem{{ProductID: widgetA.ID, Quantity: 3, Price: 99.99}}}))
	sd.do(s.CreateOrder(ctx, &Order{OrganizationID: org.ID, CustomerID: techstart.ID, Number: "ORD-002", Status: "pending",
		Total: 249.95, CreatedAt: now.AddDate(0, 0, -3),
		Items: []OrderItem{{ProductID: widgetB.ID, Quantity: 5, Price: 49.99}}}))

	sd.do(s.CreateTransaction(ctx, &Transaction{OrganizationID: org.ID, Type: TxIncome, Category: "sales",
		Amount: 999.99, Description: "Premium Widget sale", Date: now}))
	sd.do(s.CreateTransaction(ctx, &Transaction{OrganizationID: org.ID, Type: TxExpense, Category: "operations",
		Amount: 500.00, Description: "Monthly operations cost", Date: now}))

	start := now
	campaign := &Campaign{OrganizationID: org.ID, Name: "Q1 Product Launch", Type: "email", Status: "active",
		Budget: 5000.00, StartDate: &start}
	sd.do(s.CreateCampaign(ctx, campaign))
	res.CampaignID = campaign.ID
	sd.do(s.CreateContent(ctx, &Content{OrganizationID: org.ID, CampaignID: campaign.ID, Title: "Introducing Premium Widget",
		Body: "We are excited to announce our new Premium Widget...", Type: "email", Status: "published"}))
	for i := 0; i < 3; i++ {
		sd.do(s.AddCampaignMetric(ctx, &CampaignMetric{CampaignID: campaign.ID, Date: now.AddDate(0, 0, -i),
			Impressions: 1000 + 200*i, Clicks: 40 + 5*i, Conversions: 3 + i, Spend: 120, Revenue: 300 + 50*float64(i)}))
	}

	prospect := &Lead{OrganizationID: org.ID, Email: "prospect@example.com", Name: "John Prospect",
		Company: "Prospect Corp", Source: "website", Status: LeadNew, Score: 75}
	qualified := &Lead{OrganizationID: org.ID, Email: "lead@example.com", Name: "Jane Lead",
		Company: "Lead Inc", Source: "referral", Status: LeadQualified, Score: 90}
	sd.do(s.CreateLead(ctx, prospect))
	sd.do(s.CreateLead(ctx, qualified))
	res.LeadIDs = []string{prospect.ID, qualified.ID}

	sd.do(s.CreateKnowledgeArticle(ctx, &KnowledgeArticle{OrganizationID: org.ID, Title: "Getting Started Guide",
		Content: "Welcome to Lumina AI. This guide will help you get started...", Type: "manual", Category: "onboarding",
		Tags: []string{"getting-started", "basics"}, IsPublic: true}))
	sd.do(s.CreateKnowledgeArticle(ctx, &KnowledgeArticle{OrganizationID: org.ID, Title: "Customer Support SOP",
		Content: "Standard operating procedure for handling customer support tickets...", Type: "sop", Category: "support",
		Tags: []string{"support", "sop"}}))

	hired := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	employee := &Employee{OrganizationID: org.ID, Name: "Sarah Johnson", Email: "sarah@demo-org.com",
		Role: "Customer Success Manager", Department: "Support", Status: "active", HireDate: &hired}
	sd.do(s.CreateEmployee(ctx, employee))
	res.EmployeeID = employee.ID
	sd.do(s.CreateOnboardingPlan(ctx, &OnboardingPlan{OrganizationID: org.ID, EmployeeID: employee.ID,
		Name: "30-Day Onboarding", Status: "in_progress", StartDate: &hired, Tasks: []PlanTask{
			{ID: "1", Title: "Complete company orientation", Completed: true, DueDate: "2024-01-16"},
			{ID: "2", Title: "Review product documentation", Completed: true, DueDate: "2024-01-18"},
			{ID: "3", Title: "Shadow senior team member", Completed: false, DueDate: "2024-01-25"},
		}}))

	competitor := &Competitor{OrganizationID: org.ID, Name: "Competitor Inc", Website: "https://competitor.com",
		Industry: "SaaS", Strengths: []string{"Strong brand", "Large customer base"},
		Weaknesses: []string{"Higher pricing", "Slower innovation"}}
	sd.do(s.CreateCompetitor(ctx, competitor))
	res.CompetitorID = competitor.ID
	sd.do(s.AddCompetitorInsight(ctx, &CompetitorInsight{CompetitorID: competitor.ID, Type: "pricing",
		Title: "Price increase announced", Content: "Competitor Inc raised list prices by 15% for new customers."}))

	sd.do(s.CreateNotification(ctx, &Notification{OrganizationID: org.ID, UserID: user.ID, Type: "info",
		Title: "Welcome to Lumina AI", Message: "Your demo workspace is ready."}))

	if sd.err != nil {
		return nil, sd.err
	}
	return res, nil
}

// seeder keeps the first error so Seed reads as a straight list of inserts.
type seeder struct {
	err error
}

func (sd *seeder) do(err error) {
	if sd.err == nil && err != nil {
		sd.err = fmt.Errorf("seeding: %w", err)
	}
}
