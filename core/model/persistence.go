package model

import (
	"io"
	"os"

	"github.com/goml-dev/modelselect/pkg/errors"
)

// SaveModel writes the learned-parameter state of a fitted estimator to a
// file. Hyperparameters are not saved; reconstruct the estimator with the
// same configuration before loading.
func SaveModel(m StateExporter, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create model file")
	}
	defer file.Close()

	return SaveModelToWriter(m, file)
}

// LoadModel restores learned parameters from a file into m.
func LoadModel(m StateExporter, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "failed to open model file")
	}
	defer file.Close()

	return LoadModelFromReader(m, file)
}

// SaveModelToWriter writes the learned-parameter state to w.
func SaveModelToWriter(m StateExporter, w io.Writer) error {
	data, err := m.ExportState()
	if err != nil {
		return errors.Wrap(err, "failed to export model state")
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write model state")
	}
	return nil
}

// LoadModelFromReader restores learned parameters from r into m.
func LoadModelFromReader(m StateExporter, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "failed to read model state")
	}
	if err := m.ImportState(data); err != nil {
		return errors.Wrap(err, "failed to import model state")
	}
	return nil
}
