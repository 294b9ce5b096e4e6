// Package pipeline chains frame transformers in front of an estimator and runs
// them as one logical model.
//
// Layout:
//
// tracker.go    - Frame trackers (composite, consistent key, scoped cleanup)
// context.go    - Per-call execution context
// chain.go      - Transformer chain and the completion-callback protocol
// router.go     - Parameter path parsing and resolution
// parameters.go - Pipeline parameters, nested parameter text, checksum
// registry.go   - Transformer and estimator factories keyed kind@version
// builder.go    - Training
// model.go      - Scoring and removal of a fitted pipeline
//
// Every train or score call opens its own Context. Frames produced by stages are
// tracked by it and released when the call ends, on success and failure alike;
// only the frame returned to the caller survives.
package pipeline
