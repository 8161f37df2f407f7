// Package tenancy wires the connection lease, tenant resolution and partition binding into one
// HTTP middleware and exposes the resulting Scope to route handlers.
//
//	r.Use(tenancy.Middleware(leases, resolver, binder,
//		tenancy.WithErrorHandler(translator.Handler(log)),
//	))
//
//	func listProjects(w http.ResponseWriter, r *http.Request) {
//		scope := tenancy.MustFromContext(r.Context())
//		rows, err := scope.DB().Query(r.Context(), "SELECT id, name FROM projects")
//		...
//	}
//
// The connection behind Scope.DB is exclusive to the request and is reset and returned to the
// pool when the handler returns, panics or the request is cancelled.
package tenancy
