package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/constrictor/constrictor/pkg/catalogue"
	"github.com/constrictor/constrictor/pkg/stores"
)

// loadDatasets loads definition files into an in-memory catalogue.
// Warnings are logged; error issues fail the load.
func loadDatasets(cmd *cobra.Command, sources []string) (*catalogue.Registry, error) {
	logger := loggerFrom(cmd)

	registry := catalogue.NewRegistry()
	result, err := registry.LoadFrom(cmd.Context(), catalogue.NewLoader(), sources)
	if result != nil {
		for _, issue := range result.Issues {
			if issue.Severity == catalogue.SeverityWarning {
				logger.Warn(issue.String())
			}
		}
	}
	if err != nil {
		return nil, err
	}

	logger.WithField("datasets", registry.Len()).Debug("Loaded dataset definitions")
	return registry, nil
}

// datasetID picks the dataset a command works on: the explicit id, or the
// only dataset of the catalogue.
func datasetID(registry *catalogue.Registry, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	datasets := registry.List()
	switch len(datasets) {
	case 0:
		return "", fmt.Errorf("no datasets defined")
	case 1:
		return datasets[0].ID, nil
	}
	ids := make([]string, len(datasets))
	for i, d := range datasets {
		ids[i] = d.ID
	}
	return "", fmt.Errorf("several datasets defined, choose one with --id: %s", strings.Join(ids, ", "))
}

// parseSelection decodes a JSON object of parameter values. A value starting
// with @ names a file holding the object.
func parseSelection(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}

	data := []byte(raw)
	if strings.HasPrefix(raw, "@") {
		b, err := os.ReadFile(raw[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to read selection: %w", err)
		}
		data = b
	}

	selection := map[string]interface{}{}
	if err := json.Unmarshal(data, &selection); err != nil {
		return nil, fmt.Errorf("invalid selection: %w", err)
	}
	return selection, nil
}

// openStore opens and migrates the SQLite catalogue.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// printOutput writes v as JSON with --json and as YAML otherwise.
func printOutput(w io.Writer, v interface{}) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}
