// Package harden audits workload security contexts against the
// Kubernetes restricted Pod Security profile and generates remediations.
// The audit side is a read-only scanner that reports each missing
// control as a finding. The remediation side renders a hardened copy of
// the workload manifest plus a strategic merge patch so a platform
// operator can review and commit the change through GitOps instead of
// patching the cluster directly. Nothing in this package ever writes to
// the cluster.
package harden
