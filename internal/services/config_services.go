package services

import (
	"vigil/internal/models"
	"vigil/pkg/modules"
)

type ModuleInfo struct {
	Name        string          `json:"name"`
	Category    models.Category `json:"category"`
	Description string          `json:"description,omitempty"`
	Default     bool            `json:"default"`
}

type ModuleCatalogue struct {
	ExecutionMode  string       `json:"execution_mode"`
	DefaultModules []string     `json:"default_modules"`
	Modules        []ModuleInfo `json:"modules"`
}

type ConfigServiceMethods interface {
	GetScanModules() ModuleCatalogue
}

type configService struct {
	registry *modules.Registry
	mode     string
}

func NewConfigService(registry *modules.Registry, executionMode string) ConfigServiceMethods {
	return &configService{registry: registry, mode: executionMode}
}

func (c *configService) GetScanModules() ModuleCatalogue {
	list := c.registry.List()
	out := ModuleCatalogue{
		ExecutionMode:  c.mode,
		DefaultModules: c.registry.Defaults(),
		Modules:        make([]ModuleInfo, 0, len(list)),
	}
	for _, m := range list {
		out.Modules = append(out.Modules, ModuleInfo{
			Name:        m.Name,
			Category:    m.Category,
			Description: m.Description,
			Default:     c.registry.IsDefault(m.Name),
		})
	}
	return out
}
