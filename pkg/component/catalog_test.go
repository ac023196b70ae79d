package component_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/designmap/pkg/component"
)

func TestAll_DeclarationOrder(t *testing.T) {
	t.Parallel()

	all := component.All()

	assert.Equal(t, component.Button, all[0])
	assert.Equal(t, component.Icon, all[len(all)-1])
	assert.NotContains(t, all, component.Container)
}

func TestRank(t *testing.T) {
	t.Parallel()

	assert.Less(t, component.Rank(component.Button), component.Rank(component.Card))
	assert.Less(t, component.Rank(component.Badge), component.Rank(component.Icon))
	assert.Equal(t, len(component.All()), component.Rank(component.Container))
	assert.True(t, component.Button.IsCatalog())
	assert.False(t, component.Container.IsCatalog())
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  component.Type
		ok    bool
	}{
		{"Button", component.Button, true},
		{"btn", component.Button, true},
		{" MODAL ", component.Dialog, true},
		{"toggle", component.Switch, true},
		{"container", component.Container, true},
		{"carousel", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, ok := component.Parse(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	entry, ok := component.Lookup(component.Badge)
	assert.True(t, ok)
	assert.Contains(t, entry.Aliases, "chip")

	_, ok = component.Lookup(component.Container)
	assert.False(t, ok)
}
