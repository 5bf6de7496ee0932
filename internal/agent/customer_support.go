package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Navneet-55/msmesolut/internal/llm"
	"github.com/Navneet-55/msmesolut/internal/store"
)

// SentimentCategories are the labels analyze_sentiment chooses from.
var SentimentCategories = []string{"positive", "neutral", "negative", "urgent"}

var supportArticleTypes = []string{"faq", "sop", "manual"}

// CustomerSupportAgent analyzes tickets and drafts replies.
type CustomerSupportAgent struct {
	base
	data SupportStore
}

// NewCustomerSupportAgent creates the customer_support agent.
func NewCustomerSupportAgent(data SupportStore, caps *llm.Capabilities) *CustomerSupportAgent {
	return &CustomerSupportAgent{base: newBase(caps), data: data}
}

// Type returns CustomerSupport.
func (a *CustomerSupportAgent) Type() Type { return CustomerSupport }

// Execute runs one customer support action.
func (a *CustomerSupportAgent) Execute(ctx context.Context, organizationID string, in Input) (*Result, error) {
	action, err := prepare(CustomerSupport, in)
	if err != nil {
		return nil, err
	}
	ticketID := in.String("ticketId")
	switch action {
	case ActionAnalyzeSentiment:
		return a.analyzeSentiment(ctx, organizationID, ticketID)
	case ActionGenerateResponse:
		return a.generateResponse(ctx, organizationID, ticketID)
	case ActionSuggestSolution:
		return a.suggestSolution(ctx, organizationID, ticketID)
	}
	return nil, &UnknownActionError{Action: in.Action}
}

func (a *CustomerSupportAgent) ticket(ctx context.Context, organizationID, id string) (*store.Ticket, error) {
	t, err := a.data.GetTicket(ctx, organizationID, id)
	if err != nil {
		return nil, lookupError("Ticket", id, err)
	}
	return t, nil
}

func (a *CustomerSupportAgent) analyzeSentiment(ctx context.Context, organizationID, ticketID string) (*Result, error) {
	ticket, err := a.ticket(ctx, organizationID, ticketID)
	if err != nil {
		return nil, err
	}
	msgs, err := a.data.RecentTicketMessages(ctx, ticket.ID, 5)
	if err != nil {
		return nil, fmt.Errorf("loading ticket messages: %w", err)
	}

	parts := []string{ticket.Subject, ticket.Description}
	for _, m := range msgs {
		parts = append(parts, m.Content)
	}
	cls, err := a.caps.Classify(ctx, llm.ClassifyRequest{
		Text:        strings.Join(parts, "\n"),
		Categories:  SentimentCategories,
		Description: "Classify customer sentiment and urgency",
	})
	if err != nil {
		return nil, fmt.Errorf("classifying sentiment: %w", err)
	}

	if _, err := a.data.UpdateTicketSentiment(ctx, organizationID, ticket.ID, ticket.Version, cls.Category); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Entity: "Ticket", ID: ticket.ID}
		}
		return nil, fmt.Errorf("updating ticket sentiment: %w", err)
	}

	return &Result{
		Output: map[string]any{
			"sentiment":  cls.Category,
			"confidence": cls.Confidence,
			"ticketId":   ticket.ID,
		},
		Reasoning: fmt.Sprintf("Analyzed customer communication and classified sentiment as %s with %d%% confidence.",
			cls.Category, int(math.Round(cls.Confidence*100))),
	}, nil
}

func (a *CustomerSupportAgent) generateResponse(ctx context.Context, organizationID, ticketID string) (*Result, error) {
	ticket, err := a.ticket(ctx, organizationID, ticketID)
	if err != nil {
		return nil, err
	}
	var customer *store.Customer
	if ticket.CustomerID != "" {
		customer, err = a.data.GetCustomer(ctx, organizationID, ticket.CustomerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("loading customer: %w", err)
		}
	}
	msgs, err := a.data.RecentTicketMessages(ctx, ticket.ID, 10)
	if err != nil {
		return nil, fmt.Errorf("loading ticket messages: %w", err)
	}
	articles, err := a.data.KnowledgeByTypes(ctx, organizationID, supportArticleTypes, 5)
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}

	var b strings.Builder
	b.WriteString("Write a reply to this customer support ticket.\n\n")
	fmt.Fprintf(&b, "Ticket %s: %s\n%s\nPriority: %s\n\n", ticket.Number, ticket.Subject, ticket.Description, ticket.Priority)
	if customer != nil {
		fmt.Fprintf(&b, "Customer: %s (%s)\nCompany: %s\n\n", customer.Name, orNA(customer.Email), orNA(customer.Company))
	}
	b.WriteString("Conversation so far:\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", m.Sender, m.Content)
	}
	if len(articles) > 0 {
		b.WriteString("\nRelevant knowledge base articles:\n")
		for _, art := range articles {
			fmt.Fprintf(&b, "- %s: %s\n", art.Title, art.Content)
		}
	}
	b.WriteString("\nThe reply must be empathetic and professional, address the customer's concern directly, " +
		"and give concrete next steps. Use the knowledge base where it applies.")

	res, err := a.generate(ctx, b.String(), 500, 0.7)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output:    map[string]any{"response": res.Text, "ticketId": ticket.ID},
		Reasoning: "Generated response based on ticket context, customer history, and knowledge base.",
		Metadata:  usageMetadata(res),
	}, nil
}

func (a *CustomerSupportAgent) suggestSolution(ctx context.Context, organizationID, ticketID string) (*Result, error) {
	ticket, err := a.ticket(ctx, organizationID, ticketID)
	if err != nil {
		return nil, err
	}
	category := ticket.Category
	if category == "" {
		category = "General"
	}
	prompt := fmt.Sprintf(`Recommend how to resolve this support ticket.

Ticket: %s
Description: %s
Category: %s
Priority: %s

Cover the likely root cause, step-by-step resolution, alternatives if the first approach fails, how to prevent a recurrence, and an estimated time to resolve.`,
		ticket.Subject, ticket.Description, category, ticket.Priority)

	res, err := a.generate(ctx, prompt, 800, 0.6)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output:    map[string]any{"suggestion": res.Text, "ticketId": ticket.ID},
		Reasoning: "Analyzed ticket details to provide structured solution recommendations.",
		Metadata:  usageMetadata(res),
	}, nil
}
