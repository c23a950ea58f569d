// SPDX-License-Identifier: MIT
//
// Package model holds the domain types shared by every stage of a cohort run:
// subject identifiers, the immutable description of a transform stage, and the
// typed outcome recorded for each (subject, stage) pair.
//
// # Core Concepts
//
//   - SubjectID: an opaque token naming one participant. All file names are
//     derived from it through the path resolver.
//
//   - StageSpec: one named transform step (for example "normalize" or
//     "smooth"). It lists the input roles the step consumes, the prefix given
//     to its output, the numeric parameters handed to the external tool, and
//     the command template used to invoke it. A StageSpec is built once when
//     the pipeline file is loaded and is shared read-only by all workers.
//
//   - Outcome: the result of driving one subject through one stage. It is
//     always one of Success, SkippedMissingInput or Failed, and a run produces
//     exactly one Outcome per subject occurrence and stage.
//
// The package has no behaviour beyond small helpers; it exists so that the
// resolver, the runner, the orchestrator and the persistence layers agree on
// one vocabulary without importing each other.
package model
