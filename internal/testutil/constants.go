package testutil

// Fixture identifiers shared across package tests.
const (
	TestOrgID      = "org_test"
	TestOtherOrgID = "org_other"
	TestAPIKey     = "test-api-key-0123456789"
	TestUserEmail  = "owner@example.com"
	TestPassword   = "correct horse battery"
)
