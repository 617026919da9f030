// Package planner rewrites declarative parameter sets into per-partition
// execution plans. Everything here is pure: no storage or process access.
package planner

import (
	"path"
	"strings"

	"github.com/abourramouss/serverlessextract-sub000/internal/archive"
	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
)

// LogExtension is the suffix of the captured binary output uploaded per stage
const LogExtension = ".log"

// Resolve rewrites one reference for the partition with the given base name.
// Outputs and dynamic inputs are re-keyed below their key with the base name,
// so distinct partitions never share an output key. Plain inputs keep their key.
func Resolve(ref domain.ReferencePath, baseName string, run domain.RunContext) domain.ResolvedPath {
	resolved := domain.ResolvedPath{
		Kind:      ref.Kind,
		Container: ref.Container,
		Extension: ref.Extension,
	}

	switch {
	case ref.Kind == domain.ReferenceOutput:
		resolved.Key = path.Join(run.Key(ref.Key), baseName+ref.Extension)
		resolved.UploadKey = resolved.Key
		if ref.OverwriteKey != "" {
			resolved.UploadKey = path.Join(run.Key(ref.OverwriteKey), baseName+ref.Extension)
		}
	case ref.Dynamic:
		resolved.Key = path.Join(run.InputKey(ref.Key), baseName+ref.Extension)
	default:
		resolved.Key = run.InputKey(ref.Key) + ref.Extension
	}
	return resolved
}

// ResolvePartition points an input at one listed partition key
func ResolvePartition(ref domain.ReferencePath, partitionKey string) domain.ResolvedPath {
	return domain.ResolvedPath{
		Kind:      domain.ReferenceInput,
		Container: ref.Container,
		Key:       partitionKey,
		Extension: ref.Extension,
	}
}

// ListPrefix returns the storage prefix listed to discover the partitions of a designated input
func ListPrefix(ref domain.ReferencePath, run domain.RunContext) string {
	return strings.TrimSuffix(run.InputKey(ref.Key), "/") + "/"
}

// MatchesInput reports whether a listed key is a partition of the designated
// input. Log artifacts never match; when the reference has an extension the key
// must carry it, possibly followed by the archive extension.
func MatchesInput(key string, ref domain.ReferencePath) bool {
	if strings.HasSuffix(key, "/") || strings.HasSuffix(key, LogExtension) {
		return false
	}
	if ref.Extension == "" {
		return true
	}
	return strings.HasSuffix(key, ref.Extension) || strings.HasSuffix(archive.TrimExtension(key), ref.Extension)
}

// LogPath returns where the captured output of one stage is stored: next to
// the stage's first output, or below logs/<step>/<label> when it has none.
func LogPath(set domain.ParameterSet, step, baseName, container string, run domain.RunContext) domain.ResolvedPath {
	var out *domain.ReferencePath
	set.Walk(func(_ string, v *domain.Value) {
		if out == nil && v.Kind == domain.ValueOutput && v.Ref != nil {
			ref := *v.Ref
			out = &ref
		}
	})
	logPath := domain.ResolvedPath{Kind: domain.ReferenceOutput, Container: container, Extension: LogExtension}
	if out != nil {
		logPath.Container = out.Container
		logPath.Key = path.Join(run.Key(out.Key), baseName+LogExtension)
	} else {
		logPath.Key = path.Join(run.Key(path.Join("logs", step, set.Label)), baseName+LogExtension)
	}
	logPath.UploadKey = logPath.Key
	return logPath
}
