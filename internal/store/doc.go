// Package store persists scan results in PostgreSQL so severity trends
// and finding deltas survive across runs. Each scan is one row in the
// scans table with its findings denormalized into the findings table;
// the delta query compares the two most recent scans of a cluster and
// scanner pair to report which findings are new and which were
// resolved. The schema is created idempotently on open.
package store
