package scene_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

func TestValidateSchema_Fixture(t *testing.T) {
	t.Parallel()

	violations, err := scene.ValidateSchema(loadFixture(t))
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestValidateSchema_Violations(t *testing.T) {
	t.Parallel()

	violations, err := scene.ValidateSchema([]byte(
		`{"version":"7","document":{"id":"1","type":"FRAME","children":[{"id":"","type":"TEXT"}]}}`,
	))
	require.NoError(t, err)
	require.NotEmpty(t, violations)

	fields := make([]string, 0, len(violations))
	for _, violation := range violations {
		fields = append(fields, violation.Field)
	}

	assert.Contains(t, fields, "version")
	assert.Contains(t, fields, "document.children.0.id")
}

func TestValidateSchema_InvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := scene.ValidateSchema([]byte(`{`))
	assert.Error(t, err)
}
