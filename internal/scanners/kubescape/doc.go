// Package kubescape extracts CVE findings from the Kubescape operator's
// softwarecomposition CRDs.
//
// The operator writes one VulnerabilityManifestSummary per scanned workload,
// in the workload's namespace. Each summary references (via
// spec.vulnerabilitiesRef) a VulnerabilityManifest holding the full Grype
// match payload; manifests always live in the kubescape namespace regardless
// of the workload's namespace.
//
// The scanner walks summary -> manifest -> spec.payload.matches and emits one
// Finding per unique CVE id. Traversal rules:
//
//   - spec.vulnerabilitiesRef.all is preferred over .relevant; a summary with
//     neither is skipped.
//   - The workload namespace comes from the kubescape.io/workload-namespace
//     label, falling back to the summary's own namespace. Namespace filters
//     apply to the workload namespace.
//   - Severity filtering is a case-insensitive substring match against the
//     vendor severity string.
//   - CVE ids are deduplicated across the whole cluster scan, first seen wins.
//
// Manifest fetches are rate limited so a fleet scan over hundreds of
// workloads does not hammer the apiserver.
package kubescape
