// Package config defines the format-agnostic configuration model of a cohort
// pipeline, along with the core interfaces (Loader, Converter) for loading
// and interpreting configuration from various sources.
//
// The `config.Model` is the single source of truth for the resolver, the
// orchestrator and the aggregation step. It is built once per run and never
// mutated afterwards. Concrete implementations of the interfaces, such as
// for HCL, are provided in separate packages.
package config
