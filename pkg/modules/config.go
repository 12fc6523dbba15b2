package modules

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"vigil/internal/models"
	"vigil/pkg/errors"
)

const (
	ExecutionSequential = "sequential"
	ExecutionParallel   = "parallel"
)

var scanIDPlaceholder = regexp.MustCompile(`\{\{\s*scan_id\s*\}\}`)

// Catalogue is the YAML description of the containerised modules.
type Catalogue struct {
	ExecutionMode      string         `yaml:"execution_mode"`
	DefaultModules     []string       `yaml:"default_modules"`
	Network            string         `yaml:"network"`
	OutputDir          string         `yaml:"output_dir"`
	ContainerOutputDir string         `yaml:"container_output_dir"`
	Modules            []ModuleConfig `yaml:"modules"`
}

type ModuleConfig struct {
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Description string   `yaml:"description"`
	Image       string   `yaml:"image"`
	Container   string   `yaml:"container"`
	Args        []string `yaml:"args"`
	Volumes     []string `yaml:"volumes"`
	OutputFile  string   `yaml:"output_file"`
	Parser      string   `yaml:"parser"`
}

// LoadCatalogue reads and validates a module catalogue file.
func LoadCatalogue(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module catalogue: %w", err)
	}
	return ParseCatalogue(data)
}

func ParseCatalogue(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse module catalogue: %w", err)
	}

	if c.ExecutionMode == "" {
		c.ExecutionMode = ExecutionSequential
	}
	if c.ContainerOutputDir == "" {
		c.ContainerOutputDir = "/output"
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalogue) Validate() error {
	if c.ExecutionMode != ExecutionSequential && c.ExecutionMode != ExecutionParallel {
		return errors.NewConfigError("execution_mode", c.ExecutionMode, "must be sequential or parallel")
	}

	seen := make(map[string]bool, len(c.Modules))
	for i, m := range c.Modules {
		if m.Name == "" {
			return errors.NewConfigError(fmt.Sprintf("modules[%d].name", i), m.Name, "is required")
		}
		if seen[m.Name] {
			return errors.NewConfigError(fmt.Sprintf("modules[%d].name", i), m.Name, "is duplicated")
		}
		seen[m.Name] = true

		if !models.Category(m.Category).Valid() {
			return errors.NewConfigError(m.Name+".category", m.Category, "must be quick, deep or security")
		}
		if m.Image == "" && m.Container == "" {
			return errors.NewConfigError(m.Name+".image", m.Image, "image or container is required")
		}
		if m.Parser == "" {
			return errors.NewConfigError(m.Name+".parser", m.Parser, "is required")
		}
		if m.OutputFile != "" && !scanIDPlaceholder.MatchString(m.OutputFile) {
			return errors.NewConfigError(m.Name+".output_file", m.OutputFile, "must include {{scan_id}}")
		}
	}

	return nil
}
