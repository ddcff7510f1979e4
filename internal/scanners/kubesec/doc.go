// Package kubesec scores workload manifests against the kubesec.io risk
// ruleset. It submits rendered manifests to a kubesec v2 API endpoint
// (the public https://v2.kubesec.io/scan by default, or a self-hosted
// instance) and converts the returned scoring sections into findings:
// failed critical rules surface as Critical findings, advisory rules as
// Low. Both local manifest files and live cluster workloads can be
// scanned; live scans serialize Deployments, StatefulSets and DaemonSets
// back to YAML before submission.
package kubesec
