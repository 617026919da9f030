package domain

import (
	"fmt"
	"path"
	"strings"
)

// ReferenceKind tags a reference as an input or an output of a step
type ReferenceKind string

const (
	ReferenceInput  ReferenceKind = "input"
	ReferenceOutput ReferenceKind = "output"
)

// IsValid checks if the reference kind is valid
func (k ReferenceKind) IsValid() bool {
	switch k {
	case ReferenceInput, ReferenceOutput:
		return true
	}
	return false
}

// ReferencePath identifies a located, possibly not yet existing, artifact in object storage.
type ReferencePath struct {
	Kind      ReferenceKind `json:"kind" yaml:"-"`
	Container string        `json:"container" yaml:"container"`
	Key       string        `json:"key" yaml:"key"`
	Extension string        `json:"ext,omitempty" yaml:"ext"`
	// Dynamic inputs are re-keyed with the partition base name before use.
	Dynamic bool `json:"dynamic,omitempty" yaml:"dynamic"`
	// OverwriteKey redirects the upload of an output independently of where it was written.
	OverwriteKey string `json:"overwriteKey,omitempty" yaml:"overwrite_key"`
}

// Identity returns the (container, key, extension) triple used for equality.
func (r ReferencePath) Identity() string {
	return r.Container + "|" + r.Key + "|" + r.Extension
}

// Equal reports whether two references point at the same artifact.
func (r ReferencePath) Equal(other ReferencePath) bool {
	return r.Identity() == other.Identity()
}

// IsInput returns true for input references
func (r ReferencePath) IsInput() bool {
	return r.Kind == ReferenceInput
}

// IsOutput returns true for output references
func (r ReferencePath) IsOutput() bool {
	return r.Kind == ReferenceOutput
}

// String renders the reference as a storage URL.
func (r ReferencePath) String() string {
	return fmt.Sprintf("s3://%s/%s%s", r.Container, r.Key, r.Extension)
}

// Validate checks the kind-specific invariants of a reference.
func (r ReferencePath) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("reference %q: invalid kind %q", r.Key, r.Kind)
	}
	if r.Container == "" {
		return fmt.Errorf("reference %q: container is required", r.Key)
	}
	if r.Key == "" {
		return fmt.Errorf("reference in %q: key is required", r.Container)
	}
	if r.Dynamic && r.Kind != ReferenceInput {
		return fmt.Errorf("reference %q: only inputs can be dynamic", r.Key)
	}
	if r.OverwriteKey != "" && r.Kind != ReferenceOutput {
		return fmt.Errorf("reference %q: only outputs can set an overwrite key", r.Key)
	}
	return nil
}

// ResolvedPath is a reference rewritten for one partition.
// Key is the concrete remote key, UploadKey the target of an output upload and
// Local the filesystem path on the worker (empty until localized).
type ResolvedPath struct {
	Kind      ReferenceKind `json:"kind"`
	Container string        `json:"container"`
	Key       string        `json:"key"`
	UploadKey string        `json:"uploadKey,omitempty"`
	Extension string        `json:"ext,omitempty"`
	Local     string        `json:"local,omitempty"`
}

// BaseName returns the partition base name of an object key: the last path
// element up to its first dot ("runs/x/part_3.ms.zip" yields "part_3").
func BaseName(key string) string {
	base := path.Base(strings.TrimSuffix(key, "/"))
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}
