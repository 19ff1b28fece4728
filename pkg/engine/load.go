package engine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ormasoftchile/irflow/pkg/playbook"
)

// LoadPlaybooks validates and registers every playbook document in dir.
// Valid documents are registered even when others fail; the returned
// error joins the failures. It returns the incident types registered.
func (e *Engine) LoadPlaybooks(dir string) ([]string, error) {
	files, err := playbook.Files(dir)
	if err != nil {
		return nil, err
	}
	var (
		loaded []string
		errs   []error
	)
	for _, path := range files {
		pb, verrs := playbook.ValidateFile(path)
		if playbook.HasErrors(verrs) || pb == nil {
			for _, ve := range verrs {
				if ve.Severity == "error" {
					errs = append(errs, fmt.Errorf("%s: %w", path, ve))
				}
			}
			continue
		}
		for _, ve := range verrs {
			e.log.Warn("playbook warning",
				zap.String("file", path),
				zap.String("path", ve.Path),
				zap.String("message", ve.Message))
		}
		e.catalog.Register(pb.Meta.IncidentType, pb.Steps)
		loaded = append(loaded, pb.Meta.IncidentType)
		e.log.Info("playbook loaded",
			zap.String("file", path),
			zap.String("name", pb.Meta.Name),
			zap.String("incident_type", pb.Meta.IncidentType))
	}
	return loaded, errors.Join(errs...)
}
