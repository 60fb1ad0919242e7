package datasource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

const yamlDoc = `
entities:
  - entity_id: B1
    company_name: First Bank
    type: bank
    indicators:
      Credit:
        npl_ratio: 0.04
        provision_coverage: 1.2
    scores:
      LIQUIDITY: 40
      market: 55.5
      operational: 20
      capitaladequacy: 35
licenses:
  - license_id: L1
    entity_id: B1
    kind: banking
    status: suspended
  - license_id: L2
    entity_id: B1
    status: active
    expires_at: 2025-01-01T00:00:00Z
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileSource_YAML(t *testing.T) {
	src, err := NewFileSource(writeFile(t, "data.yaml", yamlDoc), logger.NewNoopLogger())
	require.NoError(t, err)

	entities, licenses, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Len(t, licenses, 2)

	e := entities[0]
	assert.Equal(t, "First Bank", e.CompanyName)
	assert.Equal(t, 0.04, e.Indicators[constants.DimensionCredit]["npl_ratio"])
	assert.Equal(t, 40.0, e.Scores[constants.DimensionLiquidity])
	assert.Equal(t, 35.0, e.Scores[constants.DimensionCapitalAdequacy])

	assert.Equal(t, constants.LicenseStatusSuspended, licenses[0].Status)
	require.NotNil(t, licenses[1].ExpiresAt)
	assert.True(t, licenses[1].IsExpiredAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestFileSource_JSON(t *testing.T) {
	doc := `{"entities":[{"entity_id":"F1","company_name":"Pay Co","type":"fintech","scores":{"credit":10,"liquidity":20,"market":30,"operational":40,"capitalAdequacy":50}}],"licenses":[]}`
	src, err := NewFileSource(writeFile(t, "data.JSON", doc), logger.NewNoopLogger())
	require.NoError(t, err)

	entities, licenses, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Empty(t, licenses)
	assert.Equal(t, 50.0, entities[0].Scores[constants.DimensionCapitalAdequacy])
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		asJSON bool
		code   constants.ErrorCode
	}{
		{"malformed yaml", "entities: [", false, constants.ErrCodeInvalidRequest},
		{"malformed json", "{", true, constants.ErrCodeInvalidRequest},
		{"unknown json field", `{"entities":[],"extra":1}`, true, constants.ErrCodeInvalidRequest},
		{"unknown dimension", "entities:\n  - entity_id: X\n    scores:\n      solvency: 10\n", false, constants.ErrCodeInvalidRequest},
		{"dimension scored twice by case", "entities:\n  - entity_id: X\n    scores:\n      credit: 10\n      Credit: 90\n", false, constants.ErrCodeInvalidRequest},
		{"dimension indicators given twice", "entities:\n  - entity_id: X\n    indicators:\n      market:\n        fx_exposure: 0.1\n      MARKET:\n        fx_exposure: 0.4\n", false, constants.ErrCodeInvalidRequest},
		{"json dimension scored twice", `{"entities":[{"entity_id":"X","scores":{"liquidity":10," Liquidity":20}}]}`, true, constants.ErrCodeInvalidRequest},
		{"overall is not an input", "entities:\n  - entity_id: X\n    scores:\n      overall: 10\n", false, constants.ErrCodeInvalidRequest},
		{"license without status", "licenses:\n  - license_id: L\n    entity_id: X\n", false, constants.ErrCodeInvalidRequest},
		{"license with bad status", "licenses:\n  - license_id: L\n    entity_id: X\n    status: pending\n", false, constants.ErrCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw), tt.asJSON)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), err.Error())
		})
	}
}

func TestDecode_DuplicateDimensionNamesEntity(t *testing.T) {
	_, err := Decode([]byte("entities:\n  - entity_id: BANK-7\n    scores:\n      credit: 10\n      Credit: 90\n"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BANK-7")
	assert.Contains(t, err.Error(), "credit given more than once")
}

func TestFileSource_MissingFile(t *testing.T) {
	src, err := NewFileSource(filepath.Join(t.TempDir(), "absent.yaml"), logger.NewNoopLogger())
	require.NoError(t, err)
	_, _, err = src.Fetch(context.Background())
	assert.True(t, errors.IsCode(err, constants.ErrCodeServerError))

	_, err = NewFileSource(" ", logger.NewNoopLogger())
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidConfig))
}

func TestLoadSnapshot(t *testing.T) {
	doc := `{"id":"s1","taken_at":"2026-03-01T12:00:00Z","profiles":[{"entity_id":"E1","company_name":"A","type":"bank","risk_scores":{"overall":71,"credit":75},"trend":"flat","band":"Elevated"}]}`
	snap, err := LoadSnapshot(writeFile(t, "snap.json", doc))
	require.NoError(t, err)

	p, ok := snap.Profile("E1")
	require.True(t, ok)
	assert.Equal(t, 71, p.RiskScores.Overall())
	assert.Equal(t, constants.BandElevated, p.Band)

	_, err = LoadSnapshot(writeFile(t, "bad.json", "[]"))
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidRequest))
}
