// Package model defines the opaque model value the engine passes between
// passes and the evaluator, and the ModelId scheme that identifies it
// within a cache directory.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Model is the opaque artifact the engine shuttles between passes. The
// engine never inspects its contents; it only serializes it (ToJSON) for
// caching and hands it back to passes/evaluators by value.
//
// Pruned is the sentinel signaling a dead search branch. Equality with the
// sentinel is the only operation the engine performs on it — callers must
// never treat Pruned as a nil Model.
type Model interface {
	// ToJSON returns the model's serializable representation. checkObject
	// mirrors the original config-validation toggle: false is used for
	// the eagerly-hashed input model, true for normal derived-model caching.
	ToJSON(checkObject bool) (map[string]any, error)

	// ResourcePath returns the model's resource locator (e.g. a local
	// path or a remote URI such as s3://bucket/key), or "" if the model
	// carries no external resource (fully inline).
	ResourcePath() string

	// SetLocalPath rehomes the model onto a local filesystem path after
	// materialization (§4.5/§4.7 "model materialization").
	SetLocalPath(path string)
}

// prunedModel is the unexported concrete type behind Pruned; its identity
// (not its contents) is what PassExecutor and Cache compare against.
type prunedModel struct{}

func (prunedModel) ToJSON(bool) (map[string]any, error) { return map[string]any{}, nil }
func (prunedModel) ResourcePath() string                { return "" }
func (prunedModel) SetLocalPath(string)                 {}

// Pruned is the sentinel model value. Compare with IsPruned, not ==, since
// a Model variable holding any other nil-underlying-value concrete type
// must never be confused with it.
var Pruned Model = prunedModel{}

// IsPruned reports whether m is the Pruned sentinel.
func IsPruned(m Model) bool {
	_, ok := m.(prunedModel)
	return ok
}

// Config rehydrates a Model from its serialized JSON form. Concrete model
// formats (ONNX, safetensors, ...) are out of scope for the engine core;
// embedders supply a Config implementation bound to their format.
type Config interface {
	// FromJSON parses a serialized model (as produced by ToJSON) back
	// into a Config describing how to construct the live Model.
	FromJSON(data map[string]any) (Config, error)
	// CreateModel instantiates the live Model described by this config.
	CreateModel() (Model, error)
}

// HashJSON returns a stable content hash of a JSON-serializable value,
// used both to compute the input model's ModelId and pass-config hashes.
// Map keys are sorted before hashing so that insertion order never affects
// the result.
func HashJSON(v map[string]any) string {
	h := sha256.New()
	writeStable(h, v)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func writeStable(h interface{ Write([]byte) (int, error) }, v any) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		h.Write([]byte{'{'})
		for _, k := range keys {
			h.Write([]byte(strconv.Quote(k)))
			h.Write([]byte{':'})
			writeStable(h, x[k])
			h.Write([]byte{','})
		}
		h.Write([]byte{'}'})
	case []any:
		h.Write([]byte{'['})
		for _, e := range x {
			writeStable(h, e)
			h.Write([]byte{','})
		}
		h.Write([]byte{']'})
	default:
		b, _ := json.Marshal(x)
		h.Write(b)
	}
}

// ID is a ModelId: either an input-model hash (no underscore prefix) or a
// derived-model id of the shape
//
//	<N>_<PassName>-<InputNumber>-<ConfigHash>[-<AcceleratorSpec>]
type ID string

// InputNumber returns the leading numeric token of the id: for a derived id
// this is the "<N>" allocated to it; for an input (root) id this is the
// full id. Used when *this* id is itself the parent of the next
// derivation, so the parent's input number (or full hash for a root)
// becomes the numerator base for the child.
func (id ID) InputNumber() string {
	s := string(id)
	if idx := strings.Index(s, "_"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// NewDerivedID composes a derived ModelId from its parts.
func NewDerivedID(number int, passName string, inputNumber string, configHash string, accelerator fmt.Stringer) ID {
	parts := []string{fmt.Sprintf("%d_%s", number, passName), inputNumber, configHash}
	s := strings.Join(parts, "-")
	if accelerator != nil {
		s = fmt.Sprintf("%s-%s", s, accelerator.String())
	}
	return ID(s)
}
