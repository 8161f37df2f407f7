// Package gate enforces what a tenant's plan and a caller's role allow.
//
// Every check exists as a function returning an error from the tenant package and as
// chi-compatible middleware:
//
//	gates := gate.New(gate.NewRegistry().
//		Register(tenant.ResourceProjects, gate.CountRows("projects")))
//
//	r.With(gates.RequireRole(tenant.RoleMember), gates.RequireUnderLimit(tenant.ResourceProjects)).
//		Post("/projects", createProject)
//
// Limit checks count on the request's bound connection immediately before the mutation. By
// default the check-then-act window is best effort; WithSerializedQuota closes it with a
// session advisory lock that is released when the connection returns to the pool.
package gate
