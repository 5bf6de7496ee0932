package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Navneet-55/msmesolut/internal/llm"
	"github.com/Navneet-55/msmesolut/internal/store"
	"github.com/Navneet-55/msmesolut/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newScripted(responses ...string) (*testutil.ScriptedProvider, *llm.Capabilities) {
	p := &testutil.ScriptedProvider{Responses: responses}
	return p, llm.NewCapabilities(p, "test-model")
}

func newTestDispatcher(t *testing.T, s *store.Store, caps *llm.Capabilities, opts ...DispatcherOption) *Dispatcher {
	t.Helper()
	reg, err := BuildRegistry(s, caps)
	require.NoError(t, err)
	return NewDispatcher(reg, s, opts...)
}

func seedOrganization(t *testing.T, s *store.Store, id, name string) {
	t.Helper()
	require.NoError(t, s.CreateOrganization(context.Background(), &store.Organization{ID: id, Name: name, Slug: id}))
}

func seedTicket(t *testing.T, s *store.Store, orgID string, messages ...string) *store.Ticket {
	t.Helper()
	ctx := context.Background()
	tk := &store.Ticket{OrganizationID: orgID, Number: "T-1", Subject: "Order never arrived", Description: "Placed two weeks ago"}
	require.NoError(t, s.CreateTicket(ctx, tk))
	for _, m := range messages {
		require.NoError(t, s.AddTicketMessage(ctx, &store.TicketMessage{TicketID: tk.ID, Sender: "customer", Content: m}))
	}
	return tk
}

func seedLead(t *testing.T, s *store.Store, orgID string) *store.Lead {
	t.Helper()
	l := &store.Lead{OrganizationID: orgID, Email: "buyer@acme.test", Name: "Ada Buyer", Company: "Acme", Source: "website"}
	require.NoError(t, s.CreateLead(context.Background(), l))
	return l
}
