// Package intentfile loads deploy intents from CUE files.
//
// An intent file declares the same fields as resolver.DeployIntent under a
// top-level "deploy" struct. Files are unified against the built-in schema
// before decoding, so type and range errors carry CUE positions instead of
// surfacing as zero values later. An optional Starlark script can compute
// environment variables that are merged into the intent before resolution.
package intentfile
