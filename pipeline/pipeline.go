// Package pipeline chains transformer stages and a terminal estimator into
// a single composite estimator.
//
// During Fit, each non-terminal stage is fit on exactly the features that
// flow through the pipeline at that point and then applied, so no stage's
// learned parameters can be influenced by data outside the call. During
// Transform, Predict and Score the stages are applied using the parameters
// learned by the previous Fit, never re-fit. Fitting a pipeline on a
// training partition and then scoring a held-out partition therefore cannot
// leak held-out information into any stage.
package pipeline

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/goml-dev/modelselect/core/model"
	"github.com/goml-dev/modelselect/pkg/errors"
)

// Stage pairs a unique name with an estimator instance. The pipeline owns
// its stage instances exclusively; sharing a stage between pipelines would
// cross-contaminate learned state.
type Stage struct {
	Name      string
	Estimator interface{}
}

// Pipeline is an ordered sequence of named stages. Every non-terminal stage
// must be a Transformer; the terminal stage may be any Fitter. Pipeline
// itself satisfies the Fitter, Predictor, Scorer, ParamGetter, ParamSetter
// and Cloner contracts, so pipelines nest anywhere a single estimator fits.
type Pipeline struct {
	state  *model.StateManager
	stages []Stage
}

// New validates the stages and builds a Pipeline. Capability problems are
// reported here, at construction time: zero stages, a blank or duplicate
// name, a non-terminal stage without Transform, a terminal stage without
// Fit, or any stage without Clone all yield a ConfigurationError.
func New(stages ...Stage) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, errors.NewConfigurationError("Pipeline", "at least one stage is required")
	}

	seen := make(map[string]bool, len(stages))
	for i, st := range stages {
		if st.Name == "" {
			return nil, errors.NewConfigurationError("Pipeline", fmt.Sprintf("stage %d has an empty name", i))
		}
		if strings.Contains(st.Name, "__") {
			return nil, errors.NewConfigurationError("Pipeline", fmt.Sprintf("stage name %q must not contain '__'", st.Name))
		}
		if seen[st.Name] {
			return nil, errors.NewConfigurationError("Pipeline", fmt.Sprintf("duplicate stage name %q", st.Name))
		}
		seen[st.Name] = true

		if _, ok := st.Estimator.(model.Cloner); !ok {
			return nil, errors.NewConfigurationError("Pipeline", fmt.Sprintf("stage %q does not support Clone", st.Name))
		}
		if i < len(stages)-1 {
			if _, ok := st.Estimator.(model.Transformer); !ok {
				return nil, errors.NewConfigurationError("Pipeline", fmt.Sprintf("non-terminal stage %q does not support Transform", st.Name))
			}
		} else if _, ok := st.Estimator.(model.Fitter); !ok {
			return nil, errors.NewConfigurationError("Pipeline", fmt.Sprintf("terminal stage %q does not support Fit", st.Name))
		}
	}

	return &Pipeline{
		state:  model.NewStateManager(),
		stages: stages,
	}, nil
}

// Stages returns the stage sequence. Callers must not mutate the stages.
func (p *Pipeline) Stages() []Stage {
	return p.stages
}

// Stage returns the named stage's estimator, or nil if absent.
func (p *Pipeline) Stage(name string) interface{} {
	for _, st := range p.stages {
		if st.Name == name {
			return st.Estimator
		}
	}
	return nil
}

func (p *Pipeline) terminal() Stage {
	return p.stages[len(p.stages)-1]
}

// Fit fits each non-terminal stage on the features flowing through the
// pipeline, transforms, and finally fits the terminal stage on the fully
// transformed features and y.
func (p *Pipeline) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewValueError("Pipeline.Fit", "empty feature matrix")
	}
	if y != nil {
		ry, _ := y.Dims()
		if ry != r {
			return errors.NewDimensionError("Pipeline.Fit", r, ry, 0)
		}
	}

	cur := X
	for _, st := range p.stages[:len(p.stages)-1] {
		tr := st.Estimator.(model.Transformer)
		out, err := tr.FitTransform(cur, y)
		if err != nil {
			return errors.Wrapf(err, "stage %q", st.Name)
		}
		cur = out
	}

	last := p.terminal()
	if err := last.Estimator.(model.Fitter).Fit(cur, y); err != nil {
		return errors.Wrapf(err, "stage %q", last.Name)
	}

	p.state.SetDimensions(c, r)
	p.state.SetFitted()
	return nil
}

// transformThrough applies every non-terminal stage's Transform in order,
// using parameters learned during Fit.
func (p *Pipeline) transformThrough(X mat.Matrix) (mat.Matrix, error) {
	cur := X
	for _, st := range p.stages[:len(p.stages)-1] {
		out, err := st.Estimator.(model.Transformer).Transform(cur)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %q", st.Name)
		}
		cur = out
	}
	return cur, nil
}

// Transform applies all stages' Transform in order. The terminal stage must
// itself be a Transformer.
func (p *Pipeline) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.state.RequireFitted("Pipeline", "Transform"); err != nil {
		return nil, err
	}
	last := p.terminal()
	tr, ok := last.Estimator.(model.Transformer)
	if !ok {
		return nil, errors.NewConfigurationError("Pipeline", fmt.Sprintf("terminal stage %q does not support Transform", last.Name))
	}
	cur, err := p.transformThrough(X)
	if err != nil {
		return nil, err
	}
	out, err := tr.Transform(cur)
	if err != nil {
		return nil, errors.Wrapf(err, "stage %q", last.Name)
	}
	return out, nil
}

// FitTransform fits the pipeline on X and returns the transformed X.
func (p *Pipeline) FitTransform(X, y mat.Matrix) (mat.Matrix, error) {
	if err := p.Fit(X, y); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// Predict transforms X through the non-terminal stages and delegates to the
// terminal stage's Predict.
func (p *Pipeline) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := p.state.RequireFitted("Pipeline", "Predict"); err != nil {
		return nil, err
	}
	last := p.terminal()
	pred, ok := last.Estimator.(model.Predictor)
	if !ok {
		return nil, errors.NewConfigurationError("Pipeline", fmt.Sprintf("terminal stage %q does not support Predict", last.Name))
	}
	cur, err := p.transformThrough(X)
	if err != nil {
		return nil, err
	}
	out, err := pred.Predict(cur)
	if err != nil {
		return nil, errors.Wrapf(err, "stage %q", last.Name)
	}
	return out, nil
}

// Score transforms X through the non-terminal stages and delegates to the
// terminal stage's Score. It never mutates learned parameters.
func (p *Pipeline) Score(X, y mat.Matrix) (float64, error) {
	if err := p.state.RequireFitted("Pipeline", "Score"); err != nil {
		return 0, err
	}
	last := p.terminal()
	sc, ok := last.Estimator.(model.Scorer)
	if !ok {
		return 0, errors.NewConfigurationError("Pipeline", fmt.Sprintf("terminal stage %q does not support Score", last.Name))
	}
	cur, err := p.transformThrough(X)
	if err != nil {
		return 0, err
	}
	score, err := sc.Score(cur, y)
	if err != nil {
		return 0, errors.Wrapf(err, "stage %q", last.Name)
	}
	return score, nil
}

// Clone returns a fresh unfitted pipeline whose stages are clones of this
// pipeline's stages. The clone shares no state with the original.
func (p *Pipeline) Clone() interface{} {
	stages := make([]Stage, len(p.stages))
	for i, st := range p.stages {
		stages[i] = Stage{
			Name:      st.Name,
			Estimator: st.Estimator.(model.Cloner).Clone(),
		}
	}
	// Construction cannot fail: the clone has the same names and the
	// cloned estimators carry the same capabilities.
	clone, err := New(stages...)
	if err != nil {
		panic(err)
	}
	return clone
}

// GetParams returns every stage's hyperparameters, keyed "stage__param".
// Stages without a ParamGetter contribute nothing.
func (p *Pipeline) GetParams() map[string]interface{} {
	params := make(map[string]interface{})
	for _, st := range p.stages {
		getter, ok := st.Estimator.(model.ParamGetter)
		if !ok {
			continue
		}
		for name, value := range getter.GetParams() {
			params[st.Name+"__"+name] = value
		}
	}
	return params
}

// SetParams routes keys of the form "stage__param" to the named stage's
// SetParams. Keys without a stage prefix, unknown stage names, and stages
// without a ParamSetter are rejected with a ValidationError.
func (p *Pipeline) SetParams(params map[string]interface{}) error {
	perStage := make(map[string]map[string]interface{})
	for key, value := range params {
		stageName, paramName, found := strings.Cut(key, "__")
		if !found || stageName == "" || paramName == "" {
			return errors.NewValidationError(key, "expected 'stage__param' form", value)
		}
		if p.Stage(stageName) == nil {
			return errors.NewValidationError(key, fmt.Sprintf("no stage named %q", stageName), value)
		}
		if perStage[stageName] == nil {
			perStage[stageName] = make(map[string]interface{})
		}
		perStage[stageName][paramName] = value
	}

	for stageName, stageParams := range perStage {
		setter, ok := p.Stage(stageName).(model.ParamSetter)
		if !ok {
			return errors.NewValidationError(stageName, "stage does not support SetParams", stageParams)
		}
		if err := setter.SetParams(stageParams); err != nil {
			return errors.Wrapf(err, "stage %q", stageName)
		}
	}
	return nil
}

// stageBlob is one (stage name, learned-parameter blob) pair of the
// serialized pipeline state.
type stageBlob struct {
	Name string
	Blob []byte
}

// ExportState serializes the fitted pipeline's learned parameters as an
// ordered sequence of (stage name, blob) pairs. Every stage must implement
// StateExporter.
func (p *Pipeline) ExportState() ([]byte, error) {
	if err := p.state.RequireFitted("Pipeline", "ExportState"); err != nil {
		return nil, err
	}

	blobs := make([]stageBlob, len(p.stages))
	for i, st := range p.stages {
		exp, ok := st.Estimator.(model.StateExporter)
		if !ok {
			return nil, errors.NewConfigurationError("Pipeline", fmt.Sprintf("stage %q does not support state export", st.Name))
		}
		blob, err := exp.ExportState()
		if err != nil {
			return nil, errors.Wrapf(err, "stage %q", st.Name)
		}
		blobs[i] = stageBlob{Name: st.Name, Blob: blob}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(blobs); err != nil {
		return nil, errors.Wrap(err, "Pipeline.ExportState")
	}
	return buf.Bytes(), nil
}

// ImportState restores learned parameters serialized by ExportState into a
// pipeline constructed with the same stage names in the same order.
func (p *Pipeline) ImportState(data []byte) error {
	var blobs []stageBlob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&blobs); err != nil {
		return errors.Wrap(err, "Pipeline.ImportState")
	}
	if len(blobs) != len(p.stages) {
		return errors.NewValueError("Pipeline.ImportState", "stage count does not match serialized state")
	}

	for i, st := range p.stages {
		if blobs[i].Name != st.Name {
			return errors.NewValueError("Pipeline.ImportState",
				fmt.Sprintf("stage %d is %q, serialized state has %q", i, st.Name, blobs[i].Name))
		}
		exp, ok := st.Estimator.(model.StateExporter)
		if !ok {
			return errors.NewConfigurationError("Pipeline", fmt.Sprintf("stage %q does not support state import", st.Name))
		}
		if err := exp.ImportState(blobs[i].Blob); err != nil {
			return errors.Wrapf(err, "stage %q", st.Name)
		}
	}

	p.state.SetFitted()
	return nil
}

// String lists the stage names in order.
func (p *Pipeline) String() string {
	names := make([]string, len(p.stages))
	for i, st := range p.stages {
		names[i] = st.Name
	}
	return fmt.Sprintf("Pipeline[%s]", strings.Join(names, " -> "))
}
