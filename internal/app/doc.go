// Package app contains the core application logic. It wires the pipeline
// configuration, the operation registry, the orchestrator and the aggregation
// steps together and owns the run lifecycle, decoupled from any specific
// entrypoint like a CLI.
package app
