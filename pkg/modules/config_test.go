package modules_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vigilerrors "vigil/pkg/errors"
	"vigil/pkg/modules"
	"vigil/pkg/testutil"
)

const catalogueYAML = `
default_modules: [nuclei]
network: scanner-net
output_dir: /var/lib/vigil/output
modules:
  - name: nuclei
    category: quick
    image: projectdiscovery/nuclei:latest
    args: ["-u", "{{target}}", "-jsonl", "-o", "{{output}}"]
    output_file: "nuclei_{{scan_id}}_{{target}}.jsonl"
    parser: nuclei
  - name: nikto
    category: deep
    container: security-scanner-nikto
    args: ["nikto", "-h", "{{target}}"]
    parser: nikto
`

func TestParseCatalogue(t *testing.T) {
	c, err := modules.ParseCatalogue([]byte(catalogueYAML))
	require.NoError(t, err)

	assert.Equal(t, modules.ExecutionSequential, c.ExecutionMode)
	assert.Equal(t, "/output", c.ContainerOutputDir)
	assert.Equal(t, []string{"nuclei"}, c.DefaultModules)
	require.Len(t, c.Modules, 2)
	assert.Equal(t, "security-scanner-nikto", c.Modules[1].Container)
}

func TestLoadCatalogue(t *testing.T) {
	dir := t.TempDir()
	path := testutil.CreateTestFile(t, dir, "modules.yaml", catalogueYAML)

	c, err := modules.LoadCatalogue(path)
	require.NoError(t, err)
	assert.Len(t, c.Modules, 2)

	_, err = modules.LoadCatalogue(dir + "/missing.yaml")
	assert.Error(t, err)
}

func TestCatalogueValidate(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name:  "bad execution mode",
			yaml:  "execution_mode: batch\n",
			field: "execution_mode",
		},
		{
			name:  "missing name",
			yaml:  "modules:\n  - category: quick\n    image: a\n    parser: nikto\n",
			field: "modules[0].name",
		},
		{
			name:  "duplicate name",
			yaml:  "modules:\n  - {name: a, category: quick, image: a, parser: nikto}\n  - {name: a, category: quick, image: a, parser: nikto}\n",
			field: "modules[1].name",
		},
		{
			name:  "bad category",
			yaml:  "modules:\n  - {name: a, category: slow, image: a, parser: nikto}\n",
			field: "a.category",
		},
		{
			name:  "no image or container",
			yaml:  "modules:\n  - {name: a, category: quick, parser: nikto}\n",
			field: "a.image",
		},
		{
			name:  "no parser",
			yaml:  "modules:\n  - {name: a, category: quick, image: a}\n",
			field: "a.parser",
		},
		{
			name:  "output file shared between scans",
			yaml:  "modules:\n  - {name: a, category: quick, image: a, parser: nikto, output_file: \"a_{{target}}.txt\"}\n",
			field: "a.output_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := modules.ParseCatalogue([]byte(tt.yaml))
			require.Error(t, err)

			var cfgErr *vigilerrors.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.ErrorIs(t, err, vigilerrors.ErrInvalidConfig)
		})
	}
}
