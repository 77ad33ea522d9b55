package constants

// Route constants shared by the router and redirects
const (
	HomeRoute    = "/"
	LoginRoute   = "/login"
	LogoutRoute  = "/logout"
	PlanRoute    = "/account/plan"
	WebhookRoute = "/webhooks/billing"
	APIPrefix    = "/api/"
	// webhook prefix without the provider path, used for CSRF exemption
	WebhookPrefix = "/webhooks/"
)
