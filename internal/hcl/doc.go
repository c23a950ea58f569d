// Package hcl reads pipeline files written in HCL. The loader decodes the
// pipeline, stage and aggregate blocks, resolves relative paths against the
// file's directory and checks every cross-reference before any subject is
// touched. The converter turns a stage's params block into the operation's
// typed struct and evaluates command templates once per subject.
package hcl
