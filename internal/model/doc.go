// Package model defines the domain types and value objects for the
// dblimits CLI.
//
// This package contains pure data structures with no external dependencies.
// The central entity is Environment — the resolved set of resource-limit
// variables that the container supervisor exports before starting the
// database. Values that could not be determined are simply absent from the
// map; they are never represented as empty strings or sentinels.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
