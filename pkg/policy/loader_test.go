package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testRego = `# Refuse grib output.
# severity: critical
package custom.no_grib

deny contains msg if {
	some f in input.request.format
	f == "grib"
	msg := "grib is not available"
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	policyFile := filepath.Join(t.TempDir(), "no-grib.rego")
	writeFile(t, policyFile, testRego)

	policy, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "no-grib" {
		t.Errorf("Expected name 'no-grib', got '%s'", policy.Name)
	}
	if policy.Description != "Refuse grib output." {
		t.Errorf("Description = %q", policy.Description)
	}
	if policy.Severity != SeverityCritical {
		t.Errorf("Severity = %q, want critical", policy.Severity)
	}
	if policy.Rego != testRego {
		t.Error("Rego content doesn't match")
	}
	if !policy.Enabled || policy.Builtin {
		t.Errorf("policy = %+v", policy)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	policyFile := filepath.Join(t.TempDir(), "archive.json")
	data, err := json.Marshal(Policy{
		Name:    "archive",
		Rego:    "package custom.archive\n\ndeny contains \"too many\" if input.granules > 10\n",
		Enabled: true,
		Builtin: true,
	})
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	writeFile(t, policyFile, string(data))

	policy, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "archive" {
		t.Errorf("Name = %q", policy.Name)
	}
	if policy.Severity != SeverityError {
		t.Errorf("Severity = %q, want the error default", policy.Severity)
	}
	if policy.Builtin {
		t.Error("file policies must not be built in")
	}
	if policy.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestLoadFromFile_JSONWithoutName(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	policyFile := filepath.Join(t.TempDir(), "anon.json")
	writeFile(t, policyFile, `{"rego": "package x"}`)

	if _, err := loader.loadFromFile(context.Background(), policyFile); err == nil {
		t.Error("expected an error for a policy without a name")
	}
}

func TestLoadFromPaths_Directory(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "no-grib.rego"), testRego)
	writeFile(t, filepath.Join(dir, "broken.json"), "{")
	writeFile(t, filepath.Join(dir, "README.md"), "not a policy")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "no-grib" {
		t.Errorf("policies = %+v", policies)
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected an error for a missing path")
	}
}

func TestLoadFromFile_Cache(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	policyFile := filepath.Join(t.TempDir(), "no-grib.rego")
	writeFile(t, policyFile, testRego)

	first, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}
	second, _ := loader.loadFromFile(context.Background(), policyFile)
	if first != second {
		t.Error("expected the cached policy")
	}

	loader.ClearCache()
	third, _ := loader.loadFromFile(context.Background(), policyFile)
	if first == third {
		t.Error("expected a fresh policy after ClearCache")
	}
}

func TestEngine_LoadPolicies(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "no-grib.rego"), testRego)

	if err := eng.LoadPolicies(ctx, []string{dir}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}
	if len(eng.ListPolicies()) != 4 {
		t.Fatalf("expected the built-in policies plus one, got %d", len(eng.ListPolicies()))
	}

	result, err := eng.EvaluateEstimate(ctx, &EstimateInput{
		DatasetID: "era5",
		Origin:    "ui",
		Granules:  1,
		Request:   map[string][]string{"format": {"grib"}},
	})
	if err != nil {
		t.Fatalf("EvaluateEstimate() error = %v", err)
	}
	if result.Allowed || result.Violations[0].Severity != SeverityCritical {
		t.Errorf("result = %+v", result)
	}

	if err := eng.ReplaceCustomPolicies(ctx, nil); err != nil {
		t.Fatalf("ReplaceCustomPolicies() error = %v", err)
	}
	if len(eng.ListPolicies()) != 3 {
		t.Errorf("expected only the built-in policies, got %d", len(eng.ListPolicies()))
	}

	err = eng.ReplaceCustomPolicies(ctx, []Policy{{Name: "bad", Rego: "package bad\n\ndeny contains"}})
	if err == nil {
		t.Error("expected a compile error")
	}
	if _, err := eng.GetPolicy(PolicyCostLimits); err != nil {
		t.Errorf("built-in policy lost after a failed replace: %v", err)
	}
}

func TestEngine_WatchPolicies(t *testing.T) {
	eng := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	loader, err := eng.WatchPolicies(ctx, []string{dir})
	if err != nil {
		t.Fatalf("WatchPolicies() error = %v", err)
	}
	defer loader.StopWatching()

	writeFile(t, filepath.Join(dir, "no-grib.rego"), testRego)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := eng.GetPolicy("no-grib"); err == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("watched policy was not loaded")
}

func TestExtractHeader(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantDesc     string
		wantSeverity Severity
	}{
		{
			name:         "no header",
			content:      "package x\n",
			wantSeverity: SeverityError,
		},
		{
			name:         "description and severity",
			content:      "# Line one\n# line two\n# severity: warning\npackage x\n# trailing\n",
			wantDesc:     "Line one line two",
			wantSeverity: SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, severity := extractHeader(tt.content)
			if desc != tt.wantDesc {
				t.Errorf("description = %q, want %q", desc, tt.wantDesc)
			}
			if severity != tt.wantSeverity {
				t.Errorf("severity = %q, want %q", severity, tt.wantSeverity)
			}
		})
	}
}
