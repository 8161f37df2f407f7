// Package audit records security-relevant actions per tenant.
//
// A Recorder enriches each entry from the request context (tenant, acting user, source IP,
// request id), queues it in a bounded buffer and returns immediately. A single worker flushes
// batches by size or interval through a Writer:
//
//	rec := audit.NewRecorder(audit.NewPostgresWriter(pool),
//		audit.WithTenantExtractor(tenancy.TenantIDFromContext),
//		audit.WithActorExtractor(tenancy.UserIDFromContext),
//	)
//	defer rec.Close(ctx)
//
//	rec.Record(ctx, "project.created", audit.WithResource("project", id))
//
// Audit storage failures never fail the business operation; they are logged with the number of
// entries lost. There is no update or delete path.
package audit
