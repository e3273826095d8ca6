// Package model defines the core data structures used throughout PRISM.
//
// This package contains the following main types:
//   - WID and FormType: validated operator input identifying a form
//   - Side: the front/back label of a physical page
//   - DocumentRequest: one form to be captured in a loop iteration
//   - Page: one acquired page with its side assignment
//   - Document: the per-document result threaded through the pipeline
//
// The models are kept free of device, image codec and filesystem concerns so
// that every other package can depend on them without import cycles.
package model
