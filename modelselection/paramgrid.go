package modelselection

import (
	"sort"

	"github.com/goml-dev/modelselect/pkg/errors"
)

// ParamGrid maps hyperparameter names to ordered candidate values. For
// pipeline targets the names use the "stage__param" form.
type ParamGrid map[string][]interface{}

// Expand returns the Cartesian product of the grid as complete
// configurations. The order is canonical and total: parameter names are
// taken lexicographically, with the last name's candidates varying fastest.
// This expansion order is the first-seen order used to break ranking ties.
//
// An empty grid, or any parameter with no candidate values, is a
// ConfigurationError.
func (g ParamGrid) Expand() ([]map[string]interface{}, error) {
	if len(g) == 0 {
		return nil, errors.NewConfigurationError("ParamGrid", "grid has no parameters")
	}

	names := make([]string, 0, len(g))
	for name := range g {
		if len(g[name]) == 0 {
			return nil, errors.NewConfigurationError("ParamGrid", "parameter '"+name+"' has no candidate values")
		}
		names = append(names, name)
	}
	sort.Strings(names)

	total := 1
	for _, name := range names {
		total *= len(g[name])
	}

	configs := make([]map[string]interface{}, 0, total)
	counters := make([]int, len(names))
	for {
		config := make(map[string]interface{}, len(names))
		for i, name := range names {
			config[name] = g[name][counters[i]]
		}
		configs = append(configs, config)

		// Odometer increment, last name fastest.
		pos := len(names) - 1
		for pos >= 0 {
			counters[pos]++
			if counters[pos] < len(g[names[pos]]) {
				break
			}
			counters[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return configs, nil
}
