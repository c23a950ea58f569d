// Package registry provides the central "glue" for the operation system.
//
// The Registry maps the operation names used in pipeline files (e.g.
// "normalize") to the compiled Go functions and parameter types that
// implement them.
//
// During application startup, the registry is populated by the built-in
// modules and then bound against the loaded stages, so that an unknown
// operation or an invalid parameter is reported before any subject is
// processed.
package registry
