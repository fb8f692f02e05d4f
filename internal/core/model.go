package core

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"prediction-backend/internal/storage"
)

// FeatureWeight is one entry in the model's fixed, ordered feature schema.
type FeatureWeight struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

type modelFile struct {
	Bias     float64         `yaml:"bias"`
	Features []FeatureWeight `yaml:"features"`
}

// LinearModel scores an input as bias + sum(weight_i * feature_i) over its
// feature schema. Features absent from the input contribute zero. The model
// is immutable once constructed and is passed into the task processor at
// startup rather than living in package state.
type LinearModel struct {
	bias     float64
	features []FeatureWeight
}

func NewLinearModel(bias float64, features []FeatureWeight) (*LinearModel, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("model must define at least one feature")
	}

	seen := make(map[string]struct{}, len(features))
	for _, f := range features {
		if f.Name == "" {
			return nil, fmt.Errorf("model feature with empty name")
		}
		if _, ok := seen[f.Name]; ok {
			return nil, fmt.Errorf("duplicate model feature %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}

	return &LinearModel{bias: bias, features: features}, nil
}

func ParseModel(data []byte) (*LinearModel, error) {
	var file modelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse model definition: %w", err)
	}
	return NewLinearModel(file.Bias, file.Features)
}

// DefaultModel is the stand-in scoring function used when no model definition
// is configured.
func DefaultModel() *LinearModel {
	model, err := NewLinearModel(0.5, []FeatureWeight{
		{Name: "feature1", Weight: 0.3},
		{Name: "feature2", Weight: 0.2},
		{Name: "feature3", Weight: 0.1},
	})
	if err != nil {
		panic(err) // static definition, cannot fail
	}
	return model
}

// LoadModel resolves a model definition from a local path or an s3:// URL.
// An empty path yields the default model. The object store is only consulted
// for s3:// paths and may be nil otherwise.
func LoadModel(ctx context.Context, store storage.ObjectStore, path string) (*LinearModel, error) {
	if path == "" {
		return DefaultModel(), nil
	}

	var data []byte
	var err error
	if strings.HasPrefix(path, "s3://") {
		bucket, key, parseErr := storage.ParseS3URL(path)
		if parseErr != nil {
			return nil, parseErr
		}
		if store == nil {
			return nil, fmt.Errorf("no object store configured for model path %s", path)
		}
		data, err = store.GetObject(ctx, bucket, key)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model definition from %s: %w", path, err)
	}

	return ParseModel(data)
}

func (m *LinearModel) Score(features map[string]float64) float64 {
	value := m.bias
	for _, f := range m.features {
		if x, ok := features[f.Name]; ok {
			value += f.Weight * x
		}
	}
	return value
}

// PartitionFeatures splits an input payload into numeric features usable for
// scoring and everything else. Invalid entries are preserved (they are stored
// with the prediction record) but never scored.
func PartitionFeatures(input map[string]any) (map[string]float64, map[string]any) {
	valid := make(map[string]float64)
	invalid := make(map[string]any)

	for name, raw := range input {
		switch v := raw.(type) {
		case float64:
			valid[name] = v
		case float32:
			valid[name] = float64(v)
		case int:
			valid[name] = float64(v)
		case int64:
			valid[name] = float64(v)
		default:
			invalid[name] = raw
		}
	}

	return valid, invalid
}
