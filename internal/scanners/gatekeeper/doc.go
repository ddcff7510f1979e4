// Package gatekeeper aggregates OPA Gatekeeper audit violations.
//
// Constraint kinds are created dynamically from ConstraintTemplates, so the
// scanner discovers the resource types in the constraints.gatekeeper.sh group
// at scan time instead of hard-coding kinds. Each constraint object carries
// its audit results in status.violations (capped by the audit's
// constraintViolationsLimit) and a status.totalViolations count that may
// exceed the listed entries.
//
// One Finding is emitted per listed violation; when the audit truncated the
// list, an aggregate Finding covers the remainder. Severity derives from
// spec.enforcementAction: deny is Critical, warn is Medium, dryrun is Low.
package gatekeeper
