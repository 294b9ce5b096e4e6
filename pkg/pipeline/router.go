package pipeline

import (
	"strconv"
	"strings"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// EstimatorSegment addresses the estimator configuration in a parameter path.
const EstimatorSegment = "estimator"

const positionalPrefix = "transformers["

// Path is a parsed parameter path.
//
//	estimator.<field>
//	<transformerId>.<field>
//	transformers[<index or id>].<field>
//	<field>                    (pipeline-level)
type Path struct {
	Raw string
	// Owner is the first segment with leading underscores stripped; empty for
	// pipeline-level paths. A nested path with an empty Owner does not resolve.
	Owner string
	// Ref is the bracket content when Owner has the positional form.
	Ref   string
	Field string
}

// Nested reports whether the path addresses a component rather than the pipeline.
func (p Path) Nested() bool {
	return strings.Contains(p.Raw, ".")
}

// ParsePath splits raw on its first separator.
func ParsePath(raw string) Path {
	head, field, nested := strings.Cut(raw, ".")
	if !nested {
		return Path{Raw: raw, Field: strings.TrimLeft(raw, "_")}
	}
	p := Path{Raw: raw, Owner: strings.TrimLeft(head, "_"), Field: field}
	if ref, ok := bracketRef(p.Owner); ok {
		p.Ref = ref
	}
	return p
}

// bracketRef extracts <ref> from transformers[<ref>]. ref must be a non-empty
// run of letters, digits, '_' or '-'.
func bracketRef(owner string) (string, bool) {
	if !strings.HasPrefix(owner, positionalPrefix) || !strings.HasSuffix(owner, "]") {
		return "", false
	}
	ref := owner[len(positionalPrefix) : len(owner)-1]
	if ref == "" {
		return "", false
	}
	for _, r := range ref {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return "", false
		}
	}
	return ref, true
}

// TargetKind classifies what a path resolves to.
type TargetKind int

const (
	TargetPipeline TargetKind = iota
	TargetEstimator
	TargetTransformer
)

// Target is a resolved parameter path.
type Target struct {
	Kind        TargetKind
	Transformer runtime.Transformer
	Index       int
	Field       string
}

// Router resolves parameter paths against a transformer sequence.
type Router struct {
	transformers []runtime.Transformer
}

// NewRouter creates a router over transformers.
func NewRouter(transformers []runtime.Transformer) Router {
	return Router{transformers: transformers}
}

// Resolve maps raw to its owner. Literal transformer ids and the estimator
// marker take precedence over the positional form.
func (r Router) Resolve(raw string) (Target, error) {
	p := ParsePath(raw)
	if !p.Nested() {
		if p.Field == "" {
			return Target{}, &domain.AddressingError{Path: raw, Reason: "empty parameter name"}
		}
		return Target{Kind: TargetPipeline, Field: p.Field, Index: -1}, nil
	}
	if p.Owner == "" {
		return Target{}, &domain.AddressingError{Path: raw, Reason: "empty component name"}
	}
	if p.Field == "" {
		return Target{}, &domain.AddressingError{Path: raw, Reason: "empty field name"}
	}

	if p.Owner == EstimatorSegment {
		return Target{Kind: TargetEstimator, Field: p.Field, Index: -1}, nil
	}
	if idx := r.indexOf(p.Owner); idx >= 0 {
		return r.transformerTarget(idx, p.Field), nil
	}

	if strings.HasPrefix(p.Owner, positionalPrefix) {
		if p.Ref == "" {
			return Target{}, &domain.AddressingError{Path: raw, Reason: "malformed transformer reference"}
		}
		if n, err := strconv.Atoi(p.Ref); err == nil {
			if n < 0 || n >= len(r.transformers) {
				return Target{}, &domain.AddressingError{
					Path:   raw,
					Reason: "transformer index " + p.Ref + " out of range [0, " + strconv.Itoa(len(r.transformers)) + ")",
				}
			}
			return r.transformerTarget(n, p.Field), nil
		}
		if idx := r.indexOf(p.Ref); idx >= 0 {
			return r.transformerTarget(idx, p.Field), nil
		}
		return Target{}, &domain.AddressingError{Path: raw, Reason: "unknown pipeline transformer " + p.Owner}
	}

	return Target{}, &domain.AddressingError{Path: raw}
}

func (r Router) transformerTarget(idx int, field string) Target {
	return Target{Kind: TargetTransformer, Transformer: r.transformers[idx], Index: idx, Field: field}
}

func (r Router) indexOf(id string) int {
	for i, t := range r.transformers {
		if t.ID() == id {
			return i
		}
	}
	return -1
}
