package modules

import (
	"fmt"

	"vigil/pkg/logger"
	"vigil/pkg/runner"
)

// BuildRegistry registers the native dns module and every module of cat,
// in catalogue order, and applies the catalogue's defaults.
func BuildRegistry(cat *Catalogue, dr *runner.DockerRunner, log *logger.Logger) (*Registry, error) {
	reg := NewRegistry(log)

	settings := DockerModuleSettings{
		Network:            cat.Network,
		OutputDir:          cat.OutputDir,
		ContainerOutputDir: cat.ContainerOutputDir,
	}
	for _, mc := range cat.Modules {
		m, err := NewDockerModule(mc, settings, dr, log)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(m); err != nil {
			return nil, fmt.Errorf("register %s: %w", mc.Name, err)
		}
	}

	if _, exists := reg.Get("dns"); !exists {
		if err := reg.Register(NewDNSModule(nil, nil)); err != nil {
			return nil, err
		}
	}

	if err := reg.SetDefaults(cat.DefaultModules); err != nil {
		return nil, err
	}
	return reg, nil
}
