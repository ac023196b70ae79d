package scene_test

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()

	data, err := os.ReadFile("testdata/checkout.json")
	require.NoError(t, err)

	return data
}

func TestDecode_Fixture(t *testing.T) {
	t.Parallel()

	doc, err := scene.DecodeBytes(loadFixture(t))
	require.NoError(t, err)

	assert.Equal(t, "1.1", doc.Version)
	assert.Equal(t, "fk-checkout", doc.Metadata.FileKey)
	assert.Equal(t, "Checkout", doc.Metadata.Name)
	assert.Equal(t, 2025, doc.Metadata.ExportedAt.Year())
	assert.Contains(t, doc.Extra, "exportedBy")

	require.NotNil(t, doc.Root)
	assert.Equal(t, scene.TypeDocument, doc.Root.Type)
	assert.Equal(t, 13, doc.Root.Count())

	button := doc.Root.Children[0].Children[0]
	assert.Equal(t, "2:1", button.ID)
	assert.True(t, button.IsInstance())
	assert.InDelta(t, 36.0, button.Bounds.Height, 1e-9)
	assert.InDelta(t, 1.0, button.Opacity, 1e-9)
	assert.True(t, button.Visible)
	assert.Contains(t, button.Extra, "pluginData")

	text, ok := button.Properties["Button Text#1"].Text()
	require.True(t, ok)
	assert.Equal(t, "Send", text)

	require.Len(t, button.Children, 3)
	assert.Equal(t, "Icon / Send", button.Children[0].Name)
	assert.Equal(t, "Send", button.Children[1].Characters)
	assert.Equal(t, "Icon / Circle", button.Children[2].Name)
}

func TestDecode_Defaults(t *testing.T) {
	t.Parallel()

	doc, err := scene.DecodeBytes([]byte(`{"version":"1","document":{"id":"0:0","type":"FRAME"}}`))
	require.NoError(t, err)

	assert.True(t, doc.Root.Visible)
	assert.InDelta(t, 1.0, doc.Root.Opacity, 1e-9)
	assert.Empty(t, doc.Root.Children)
	assert.Nil(t, doc.Root.Extra)
}

func TestDecode_NumericVersion(t *testing.T) {
	t.Parallel()

	doc, err := scene.DecodeBytes([]byte(`{"version":1,"document":{"id":"0:0","type":"FRAME"}}`))
	require.NoError(t, err)
	assert.Equal(t, "1", doc.Version)
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		path     string
		sentinel error
	}{
		{"not json", `{`, "$", nil},
		{"unknown version", `{"version":"9","document":{"id":"1","type":"FRAME"}}`, "$.version", scene.ErrUnsupportedVersion},
		{"missing version", `{"document":{"id":"1","type":"FRAME"}}`, "$.version", scene.ErrUnsupportedVersion},
		{"missing root", `{"version":"1"}`, "$.document", scene.ErrMissingRoot},
		{"null root", `{"version":"1","document":null}`, "$.document", scene.ErrMissingRoot},
		{"root without id", `{"version":"1","document":{"type":"FRAME"}}`, "$.document", scene.ErrMissingField},
		{
			"child without type",
			`{"version":"1","document":{"id":"1","type":"FRAME","children":[{"id":"2","type":"TEXT"},{"id":"3"}]}}`,
			"$.document.children[1]",
			scene.ErrMissingField,
		},
		{
			"children not array",
			`{"version":"1","document":{"id":"1","type":"FRAME","children":{"id":"2"}}}`,
			"$.document.children",
			scene.ErrChildrenNotArray,
		},
		{
			"bad boolean property",
			`{"version":"1","document":{"id":"1","type":"INSTANCE","componentProperties":{"Disabled":{"type":"BOOLEAN","value":[1]}}}}`,
			"$.document",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := scene.DecodeBytes([]byte(tt.input))
			require.Error(t, err)
			require.ErrorIs(t, err, scene.ErrMalformedExport)

			var malformedErr *scene.MalformedExportError
			require.True(t, errors.As(err, &malformedErr))
			assert.Equal(t, tt.path, malformedErr.Path)

			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestDecode_DeepTree(t *testing.T) {
	t.Parallel()

	const depth = 1000

	var builder strings.Builder

	builder.WriteString(`{"version":"1","document":`)

	for range depth {
		builder.WriteString(`{"id":"n","type":"FRAME","children":[`)
	}

	builder.WriteString(`{"id":"leaf","type":"TEXT"}`)

	for range depth {
		builder.WriteString(`]}`)
	}

	builder.WriteString(`}`)

	doc, err := scene.Decode(strings.NewReader(builder.String()))
	require.NoError(t, err)
	assert.Equal(t, depth+1, doc.Root.Count())
}

func TestPropertyValue_Kinds(t *testing.T) {
	t.Parallel()

	doc, err := scene.DecodeBytes([]byte(`{"version":"1","document":{"id":"1","type":"INSTANCE","componentProperties":{
		"Label#1:0": {"type":"TEXT","value":"Save"},
		"Disabled#2:0": {"type":"BOOLEAN","value":"true"},
		"Icon#3:0": {"type":"INSTANCE_SWAP","value":"12:34"},
		"Variant": {"type":"VARIANT","value":"Outline"},
		"Count": {"type":"TEXT","value":3},
		"Custom": {"type":"SLOT","value":{"a":1}}
	}}}`))
	require.NoError(t, err)

	props := doc.Root.Properties

	text, ok := props["Label#1:0"].Text()
	assert.True(t, ok)
	assert.Equal(t, "Save", text)

	flag, ok := props["Disabled#2:0"].Bool()
	assert.True(t, ok)
	assert.True(t, flag)

	swapped, ok := props["Icon#3:0"].InstanceID()
	assert.True(t, ok)
	assert.Equal(t, "12:34", swapped)

	variant, ok := props["Variant"].Text()
	assert.True(t, ok)
	assert.Equal(t, "Outline", variant)

	count, _ := props["Count"].Text()
	assert.Equal(t, "3", count)

	assert.Equal(t, scene.PropertyKind("SLOT"), props["Custom"].Kind())
	assert.Equal(t, `SLOT:{"a":1}`, props["Custom"].String())

	_, ok = props["Label#1:0"].Bool()
	assert.False(t, ok)
}
