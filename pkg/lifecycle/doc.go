// Package lifecycle provisions, updates and removes tenants in response to identity and billing
// events.
//
// A tenant moves through none → provisioning → active ⇄ suspended → deleted. Provisioning
// creates the partition before the registry row; deprovisioning soft-deletes the row and leaves
// the partition to a CleanupWorker that drops it after the grace period:
//
//	svc := lifecycle.New(leases, tenant.PostgresStoreFunc, provisioner, catalog, scheduler,
//		lifecycle.WithCache(cache),
//		lifecycle.WithAuditor(recorder),
//	)
//	worker := lifecycle.NewCleanupWorker(scheduler, leases, tenant.PostgresStoreFunc, provisioner)
//	go worker.Run(ctx)
//
// Every operation is idempotent so that redelivered webhooks converge on the same state.
package lifecycle
