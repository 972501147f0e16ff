// Package pipeline implements a small CI verification harness: a declarative
// job definition (trigger, toolchain matrix, auxiliary service container,
// ordered steps) and a runner that executes it locally.
//
// A job is four steps in a fixed order: checkout, toolchain setup, pre-checks
// and tests. Execution is strictly sequential and fail-fast; the first
// non-zero exit aborts the remaining steps and becomes the job's exit code.
// There are no retries and no partial-success reporting. An auxiliary service
// container (typically an object-storage emulator such as LocalStack) is
// started before the first step and stopped when the job ends, successful or
// not.
package pipeline
