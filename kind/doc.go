// Package kind maps processing kinds to pipeline definitions.
//
// A Plugin knows how to turn one job's settings payload into the concrete
// commands, arguments and progress parsers of a pipeline. The Registry
// holds one plugin per kind; built-in plugins cover frame interpolation,
// AI upscaling and plain ffmpeg scaling. Tool discovery goes through a
// Locator so missing binaries surface as reportable status, not panics.
package kind
