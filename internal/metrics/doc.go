// Package metrics accumulates classification and regression metrics over
// successive batches without revisiting earlier data.
//
// Responsibilities: canonicalizing soft scores, hard ids, one-hot and
// distribution inputs to class ids; counting them into confusion matrices;
// merging the counts into per-metric running state; and deriving values with
// macro, micro or per-class aggregation.
// Key types: Tensor, Metric, ConfusionMatrix, Collection.
//
// Confusion matrices are always indexed [predicted][true].
//
// No I/O is allowed in this package. Persistence lives in internal/store and
// rendering in internal/report.
package metrics
