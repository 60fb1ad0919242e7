// Package datasource loads entity and license records for a pass from files.
package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
	"github.com/turtacn/fincore-risk/pkg/utils"
)

// Document is the on-disk layout of a data source file.
type Document struct {
	Entities []models.EntityRecord  `json:"entities" yaml:"entities"`
	Licenses []models.LicenseRecord `json:"licenses" yaml:"licenses"`
}

// FileSource reads a YAML or JSON document on every Fetch, so edits to the file
// are picked up by the next pass.
type FileSource struct {
	path   string
	logger logger.Logger
}

// NewFileSource creates a FileSource. The format follows the file extension;
// .json is JSON, everything else is YAML.
func NewFileSource(path string, log logger.Logger) (*FileSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.ErrInvalidConfig("data source path is required")
	}
	return &FileSource{path: path, logger: log.WithComponent("FileSource")}, nil
}

// Fetch implements service.DataSource.
func (s *FileSource) Fetch(ctx context.Context) ([]models.EntityRecord, []models.LicenseRecord, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, nil, errors.WrapError(err, constants.ErrCodeServerError, "failed to read data source").
			WithMetadata("path", s.path)
	}

	doc, err := Decode(raw, isJSON(s.path))
	if err != nil {
		return nil, nil, err
	}

	s.logger.Debug(ctx, "Data source loaded", logger.Fields{
		"path":     s.path,
		"entities": len(doc.Entities),
		"licenses": len(doc.Licenses),
	})
	return doc.Entities, doc.Licenses, nil
}

// Decode parses and validates a document. Dimension keys are matched
// case-insensitively; unknown dimensions and invalid licenses are rejected.
func Decode(raw []byte, asJSON bool) (*Document, error) {
	var doc Document
	if asJSON {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, errors.WrapError(err, constants.ErrCodeInvalidRequest, "malformed JSON data source")
		}
	} else {
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, errors.WrapError(err, constants.ErrCodeInvalidRequest, "malformed YAML data source")
		}
	}

	for i := range doc.Entities {
		if err := canonicalizeDimensions(&doc.Entities[i]); err != nil {
			return nil, err.WithMetadata("index", i)
		}
	}
	for i, l := range doc.Licenses {
		if err := utils.ValidateStruct(l); err != nil {
			return nil, err.WithMetadata("license_index", i)
		}
	}
	return &doc, nil
}

func canonicalizeDimensions(rec *models.EntityRecord) errors.RiskError {
	if len(rec.Indicators) > 0 {
		out := make(map[constants.Dimension]models.Indicators, len(rec.Indicators))
		for key, v := range rec.Indicators {
			dim, err := scoredDimension(rec.EntityID, key)
			if err != nil {
				return err
			}
			if _, dup := out[dim]; dup {
				return duplicateDimension(rec.EntityID, "indicators", dim)
			}
			out[dim] = v
		}
		rec.Indicators = out
	}
	if len(rec.Scores) > 0 {
		out := make(map[constants.Dimension]float64, len(rec.Scores))
		for key, v := range rec.Scores {
			dim, err := scoredDimension(rec.EntityID, key)
			if err != nil {
				return err
			}
			if _, dup := out[dim]; dup {
				return duplicateDimension(rec.EntityID, "scores", dim)
			}
			out[dim] = v
		}
		rec.Scores = out
	}
	return nil
}

func scoredDimension(entityID string, key constants.Dimension) (constants.Dimension, errors.RiskError) {
	dim, ok := constants.ParseDimension(string(key))
	if !ok || !dim.IsScored() {
		return "", errors.ErrInvalidRequest(fmt.Sprintf("entity %q: unknown dimension %q", entityID, key))
	}
	return dim, nil
}

// duplicateDimension reports two keys, e.g. "credit" and "Credit", naming one dimension.
func duplicateDimension(entityID, field string, dim constants.Dimension) errors.RiskError {
	return errors.ErrInvalidRequest(fmt.Sprintf("entity %q: dimension %s given more than once in %s", entityID, dim, field)).
		WithMetadata("dimension", string(dim))
}

// LoadSnapshot reads a snapshot previously written as JSON, e.g. by the admin CLI.
func LoadSnapshot(path string) (*models.Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeServerError, "failed to read snapshot").
			WithMetadata("path", path)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInvalidRequest, "malformed snapshot")
	}
	return models.NewSnapshot(snap.ID, snap.TakenAt, snap.Profiles), nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

var _ service.DataSource = (*FileSource)(nil)
