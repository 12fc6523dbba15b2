package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vigil/internal/models"
)

// CombineOutput writes every finding of a scan, across modules, to
// <Dir>/<scan_id>/findings.jsonl.
type CombineOutput struct {
	Dir string
}

func (c *CombineOutput) Name() string {
	return "combine_output"
}

type combinedFinding struct {
	Module string `json:"module"`
	models.Finding
}

func (c *CombineOutput) OnScanComplete(ctx context.Context, scan *models.Scan) error {
	dir := filepath.Join(c.Dir, scan.ScanID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	outputFile, err := os.Create(filepath.Join(dir, "findings.jsonl"))
	if err != nil {
		return fmt.Errorf("failed to create findings.jsonl: %w", err)
	}
	defer outputFile.Close()

	enc := json.NewEncoder(outputFile)
	for _, r := range scan.Results {
		for _, f := range r.Findings {
			if err := enc.Encode(combinedFinding{Module: r.Module, Finding: f}); err != nil {
				return fmt.Errorf("failed to write to findings.jsonl: %w", err)
			}
		}
	}

	return nil
}
