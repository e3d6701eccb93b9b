package tenant

import "time"

// Tenant is one customer organization
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// FrameworkScope is a tenant paired with a framework it is assessed against
type FrameworkScope struct {
	TenantID  string `json:"tenant_id"`
	Framework string `json:"framework"`
}
