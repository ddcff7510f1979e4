// Package report renders normalized findings for humans. The terminal
// renderer mirrors the operator workflow: a cyan banner, a colored
// severity summary, then per-severity sections. The markdown exporter
// writes Jira-pasteable reports with a severity summary table and one
// findings table per severity, under timestamped filenames so repeated
// scans never clobber each other.
package report
