// Package diagram renders the ClusterApp dependency graph of an NKP
// management cluster as a markdown block diagram. Dependencies are read
// from Kommander's apps.kommander.d2iq.io/dependencies annotation (with
// required-dependencies as a fallback) and resolved against installed
// app names with their version suffix stripped. Apps without
// dependencies become roots; each root's chain is laid out breadth
// first, and apps unreachable from any root land in an orphans section.
package diagram
