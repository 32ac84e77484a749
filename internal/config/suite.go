// Package config loads evaluation suites: which metrics to run, over how many
// classes, with which aggregation policy.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/evalmetrics/internal/metrics"
)

// Metric kinds accepted in a suite file.
const (
	KindAccuracy        = "accuracy"
	KindTopKAccuracy    = "top_k_accuracy"
	KindMeanIoU         = "mean_iou"
	KindConfusionMatrix = "confusion_matrix"
	KindPrecision       = "precision"
	KindRecall          = "recall"
	KindF1              = "f1"
	KindBinaryPrecision = "binary_precision"
	KindBinaryRecall    = "binary_recall"
	KindMAE             = "mae"
	KindMSE             = "mse"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// SuiteConfig is the root of a suite file. Omitted fields fall back to the
// Get* defaults, so partial files are safe.
type SuiteConfig struct {
	Name       *string        `json:"name,omitempty"`
	NumClasses *int           `json:"num_classes,omitempty"`
	Metrics    []MetricConfig `json:"metrics,omitempty"`
}

// MetricConfig describes one collection member.
type MetricConfig struct {
	Kind    string  `json:"kind"`
	Name    *string `json:"name,omitempty"`
	Average *string `json:"average,omitempty"`
	K       *int    `json:"k,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// DefaultSuite is a binary classification preset.
func DefaultSuite() *SuiteConfig {
	return &SuiteConfig{
		Name:       ptrString("binary"),
		NumClasses: ptrInt(2),
		Metrics: []MetricConfig{
			{Kind: KindAccuracy},
			{Kind: KindConfusionMatrix},
			{Kind: KindMeanIoU},
			{Kind: KindPrecision, Average: ptrString("macro")},
			{Kind: KindRecall, Average: ptrString("macro")},
			{Kind: KindF1, Name: ptrString("f1_micro"), Average: ptrString("micro")},
			{Kind: KindBinaryPrecision},
			{Kind: KindBinaryRecall},
			{Kind: KindMAE},
		},
	}
}

// LoadSuite reads a suite from a .json file no larger than 1MB and validates it.
func LoadSuite(path string) (*SuiteConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseSuite(data)
}

// ParseSuite decodes and validates suite JSON. Unknown fields are rejected
// so typos do not silently drop a setting.
func ParseSuite(data []byte) (*SuiteConfig, error) {
	cfg := &SuiteConfig{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field ranges and kinds without building anything.
func (c *SuiteConfig) Validate() error {
	if c.NumClasses != nil && *c.NumClasses <= 0 {
		return fmt.Errorf("num_classes must be positive, got %d", *c.NumClasses)
	}
	if len(c.Metrics) == 0 {
		return fmt.Errorf("suite %q lists no metrics", c.GetName())
	}
	seen := make(map[string]bool, len(c.Metrics))
	for i, m := range c.Metrics {
		if !knownKind(m.Kind) {
			return fmt.Errorf("metrics[%d]: unknown kind %q", i, m.Kind)
		}
		if m.Average != nil {
			if _, err := metrics.ParseAverage(*m.Average); err != nil {
				return fmt.Errorf("metrics[%d]: %w", i, err)
			}
		}
		if m.K != nil && *m.K <= 0 {
			return fmt.Errorf("metrics[%d]: k must be positive, got %d", i, *m.K)
		}
		name := m.GetName()
		if seen[name] {
			return fmt.Errorf("metrics[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
	}
	return nil
}

func knownKind(kind string) bool {
	switch kind {
	case KindAccuracy, KindTopKAccuracy, KindMeanIoU, KindConfusionMatrix,
		KindPrecision, KindRecall, KindF1, KindBinaryPrecision, KindBinaryRecall,
		KindMAE, KindMSE:
		return true
	}
	return false
}

// GetName returns the suite name or "default".
func (c *SuiteConfig) GetName() string {
	if c.Name == nil || *c.Name == "" {
		return "default"
	}
	return *c.Name
}

// GetNumClasses returns num_classes or 2.
func (c *SuiteConfig) GetNumClasses() int {
	if c.NumClasses == nil {
		return 2
	}
	return *c.NumClasses
}

// GetName returns the member name, defaulting to its kind.
func (m MetricConfig) GetName() string {
	if m.Name == nil || *m.Name == "" {
		return m.Kind
	}
	return *m.Name
}

// GetAverage returns the parsed policy or macro.
func (m MetricConfig) GetAverage() metrics.Average {
	if m.Average == nil {
		return metrics.Macro
	}
	avg, err := metrics.ParseAverage(*m.Average)
	if err != nil {
		return metrics.Macro
	}
	return avg
}

// GetK returns k or 1.
func (m MetricConfig) GetK() int {
	if m.K == nil {
		return 1
	}
	return *m.K
}

// Build instantiates the suite as a collection in file order.
func (c *SuiteConfig) Build() (*metrics.Collection, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	coll, err := metrics.NewCollection()
	if err != nil {
		return nil, err
	}
	for i, mc := range c.Metrics {
		m, err := mc.build(c.GetNumClasses())
		if err != nil {
			return nil, fmt.Errorf("metrics[%d] (%s): %w", i, mc.GetName(), err)
		}
		if err := coll.Add(m); err != nil {
			return nil, err
		}
	}
	return coll, nil
}

func (m MetricConfig) build(nclasses int) (metrics.Metric, error) {
	cfg := metrics.Config{Name: m.GetName(), NumClasses: nclasses, Average: m.GetAverage()}
	switch m.Kind {
	case KindAccuracy:
		return metrics.NewAccuracy(cfg)
	case KindTopKAccuracy:
		return metrics.NewTopKAccuracy(metrics.TopKConfig{Name: cfg.Name, NumClasses: nclasses, K: m.GetK()})
	case KindMeanIoU:
		return metrics.NewMeanIoU(cfg)
	case KindConfusionMatrix:
		return metrics.NewConfusionMatrixMetric(cfg)
	case KindPrecision:
		return metrics.NewPrecision(cfg)
	case KindRecall:
		return metrics.NewRecall(cfg)
	case KindF1:
		return metrics.NewF1(cfg)
	case KindBinaryPrecision:
		return metrics.NewBinaryPrecision(cfg)
	case KindBinaryRecall:
		return metrics.NewBinaryRecall(cfg)
	case KindMAE:
		return metrics.NewMeanAbsoluteError().Named(cfg.Name), nil
	case KindMSE:
		return metrics.NewMeanSquaredError().Named(cfg.Name), nil
	}
	return nil, fmt.Errorf("unknown kind %q", m.Kind)
}
