// Package domain contains the core types of the extraction pipeline.
//
// This package defines:
//   - ReferencePath and ResolvedPath, typed pointers to object-storage artifacts
//   - ParameterSet, the ordered declarative configuration of one binary invocation
//   - Partition and DatasetRef, the units produced by partitioning
//   - ExecutionPlan, the per-worker resolved form of a step
//   - Metric types and MetricCollector, produced by the profiler
//   - FunctionTimer, WorkerResult and CompletedStep, produced by workers and the aggregator
//
// Types in this package carry no I/O; they are shared by the orchestrating node
// and the workers and are serialized as JSON between them.
package domain
