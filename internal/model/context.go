package model

// RequestContext is the tenant-scoped context every synchronous entry point
// receives. The API middleware builds it from the identity headers injected
// by the upstream auth proxy; the core only consumes it.
type RequestContext struct {
	TenantID  string
	UserID    string
	AuthToken string
	IsAdmin   bool
	Limit     int
	Marker    string
}

// CanSee reports whether the caller may observe a resource owned by tenantID.
func (c *RequestContext) CanSee(tenantID string) bool {
	return c.IsAdmin || c.TenantID == tenantID
}
