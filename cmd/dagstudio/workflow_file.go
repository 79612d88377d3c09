package main

import (
	"fmt"
	"os"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/remote"
)

// readWorkflowFile loads a workflow document in either API shape: inline
// nodes/edges or a dag_json string.
func readWorkflowFile(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	wf, err := remote.DecodeWorkflow("ReadWorkflowFile", data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow file %s: %w", path, err)
	}

	return wf, nil
}
