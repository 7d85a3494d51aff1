// Package pipeline drives a harvest run. Documents are read from a
// harvest.DocumentSource and fanned out to extraction workers. Every
// validated record then funnels into a single persister that owns the store
// and the snapshot exporter.
package pipeline
