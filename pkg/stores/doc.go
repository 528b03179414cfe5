// Package stores provides the persistence layer of the catalogue service.
//
// SQLiteStore keeps dataset definitions and an audit log of cost estimates
// in a single SQLite database opened in WAL mode. Schema changes are applied
// with embedded golang-migrate migrations.
//
// A store satisfies the catalogue interface of the estimator through
// GetDataset, so stored definitions can be estimated directly:
//
//	store, _ := stores.NewSQLiteStore(stores.Config{Path: "constrictor.db"})
//	_ = store.Init(ctx)
//	_ = store.Migrate(ctx)
//	est, _ := engine.NewEstimator(store)
//
// Estimates are audited by subscribing the store to the telemetry event
// stream:
//
//	events.Subscribe(store.AuditSubscriber(ctx, nil), stores.AuditFilter())
package stores
