package modelselection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "github.com/goml-dev/modelselect/pkg/errors"
)

func TestParamGridExpand(t *testing.T) {
	t.Run("lexicographic names, last name fastest", func(t *testing.T) {
		grid := ParamGrid{
			"b": {"x", "y", "z"},
			"a": {1, 2},
		}
		configs, err := grid.Expand()
		require.NoError(t, err)
		expected := []map[string]interface{}{
			{"a": 1, "b": "x"},
			{"a": 1, "b": "y"},
			{"a": 1, "b": "z"},
			{"a": 2, "b": "x"},
			{"a": 2, "b": "y"},
			{"a": 2, "b": "z"},
		}
		assert.Equal(t, expected, configs)
	})

	t.Run("single parameter keeps candidate order", func(t *testing.T) {
		grid := ParamGrid{"alpha": {0.1, 1.0, 10.0}}
		configs, err := grid.Expand()
		require.NoError(t, err)
		require.Len(t, configs, 3)
		assert.Equal(t, 0.1, configs[0]["alpha"])
		assert.Equal(t, 1.0, configs[1]["alpha"])
		assert.Equal(t, 10.0, configs[2]["alpha"])
	})

	t.Run("empty grid fails", func(t *testing.T) {
		_, err := ParamGrid{}.Expand()
		require.Error(t, err)
		var cfgErr *xerrors.ConfigurationError
		assert.True(t, xerrors.As(err, &cfgErr))
	})

	t.Run("parameter without candidates fails", func(t *testing.T) {
		grid := ParamGrid{"alpha": {0.1}, "beta": {}}
		_, err := grid.Expand()
		require.Error(t, err)
		var cfgErr *xerrors.ConfigurationError
		assert.True(t, xerrors.As(err, &cfgErr))
	})
}
