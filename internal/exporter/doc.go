// Package exporter serves fleet security posture as Prometheus metrics.
// A background loop rescans every cluster on a fixed interval and
// republishes finding counts by cluster, finding kind and severity; the
// HTTP server exposes /metrics alongside the usual health and readiness
// probes. Readiness flips only after the first full fleet sweep so a
// fresh pod never scrapes as all-zero.
package exporter
