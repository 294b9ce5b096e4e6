// Package domain defines the core data types shared by the pipeline core and its
// collaborators: frames and their keys, frame roles, model metrics and the
// domain error taxonomy.
//
// This package contains pure domain logic with ZERO external dependencies outside the
// Go standard library. Other packages (pipeline, storage, transformers, estimators)
// depend on these types. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
