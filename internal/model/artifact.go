// Package model loads trained model artifacts and exposes them as positional scorers.
package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/resale-estimator/internal/schema"
)

// ErrSchemaMismatch is returned when an artifact does not fit a schema version.
var ErrSchemaMismatch = schema.ErrSchemaMismatch

// ScalerParams are the fitted standardisation parameters.
type ScalerParams struct {
	Mean  []float64 `yaml:"mean" json:"mean"`
	Scale []float64 `yaml:"scale" json:"scale"`
}

// Artifact is a serialized model. Coefficients are empty for artifacts that
// are scored remotely.
type Artifact struct {
	Version      string        `yaml:"version" json:"version"`
	Columns      []string      `yaml:"columns" json:"columns"`
	Intercept    float64       `yaml:"intercept" json:"intercept"`
	Coefficients []float64     `yaml:"coefficients,omitempty" json:"coefficients,omitempty"`
	Scaler       *ScalerParams `yaml:"scaler,omitempty" json:"scaler,omitempty"`
}

// LoadArtifact reads a YAML or JSON artifact from path.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "model: read artifact %s", path)
	}
	return ParseArtifact(data, filepath.Ext(path))
}

// ParseArtifact decodes an artifact. ext selects JSON for ".json", YAML otherwise.
func ParseArtifact(data []byte, ext string) (*Artifact, error) {
	var a Artifact
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, eris.Wrap(err, "model: decode json artifact")
		}
	} else {
		if err := yaml.Unmarshal(data, &a); err != nil {
			return nil, eris.Wrap(err, "model: decode yaml artifact")
		}
	}
	if a.Version == "" {
		return nil, eris.New("model: artifact has no version")
	}
	return &a, nil
}

// Remote reports whether the artifact carries no local coefficients.
func (a *Artifact) Remote() bool { return len(a.Coefficients) == 0 }

// Verify checks the artifact was trained for ver.
func (a *Artifact) Verify(ver schema.Version) error {
	if schema.Tag(strings.ToLower(a.Version)) != ver.Tag {
		return eris.Wrapf(ErrSchemaMismatch, "artifact version %q, schema %s", a.Version, ver.Tag)
	}
	if !slices.Equal(a.Columns, ver.Columns) {
		return eris.Wrapf(ErrSchemaMismatch, "artifact columns differ from schema %s (%d vs %d)",
			ver.Tag, len(a.Columns), ver.Width())
	}
	if !a.Remote() && len(a.Coefficients) != ver.Width() {
		return eris.Wrapf(ErrSchemaMismatch, "artifact has %d coefficients, schema %s has %d columns",
			len(a.Coefficients), ver.Tag, ver.Width())
	}
	if ver.Scaled != (a.Scaler != nil) {
		return eris.Wrapf(ErrSchemaMismatch, "artifact scaler present=%t, schema %s scaled=%t",
			a.Scaler != nil, ver.Tag, ver.Scaled)
	}
	return nil
}

// StandardScaler returns the artifact's scaler, or nil when it has none.
func (a *Artifact) StandardScaler() (*StandardScaler, error) {
	if a.Scaler == nil {
		return nil, nil
	}
	return NewStandardScaler(a.Scaler.Mean, a.Scaler.Scale)
}
