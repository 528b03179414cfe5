package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// run executes the root command with args and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	t.Setenv("LOG_LEVEL", "error")
	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const fullSelection = `{"year": ["2020", "2021"], "month": ["01", "02"]}`

func TestValidateCommand(t *testing.T) {
	out, err := run(t, "--json", "validate", "testdata/sis.json")
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	var got validateOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid output %q: %v", out, err)
	}
	if !got.Valid || len(got.Datasets) != 1 || got.Datasets[0] != "sis-example" {
		t.Errorf("output = %+v", got)
	}
}

func TestConstraintsCommand(t *testing.T) {
	out, err := run(t, "--json", "constraints", "--dataset", "testdata/sis.json", "--selection", `{"year": "2021"}`)
	if err != nil {
		t.Fatalf("constraints failed: %v", err)
	}

	var got map[string][]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid output %q: %v", out, err)
	}
	want := map[string][]string{"year": {"2020", "2021"}, "month": {"01"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("form state mismatch (-want +got):\n%s", diff)
	}
}

func TestConstraintsCommand_YAML(t *testing.T) {
	out, err := run(t, "constraints", "--dataset", "testdata/sis.json", "--selection", `{"year": "2021"}`)
	if err != nil {
		t.Fatalf("constraints failed: %v", err)
	}
	if !strings.Contains(out, "month:") || !strings.Contains(out, "01") || strings.Contains(out, "{") {
		t.Errorf("unexpected YAML output:\n%s", out)
	}
}

func TestEstimateCommand(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		wantErr      bool
		wantGranules int64
		wantAllowed  bool
	}{
		{
			name:         "full selection",
			args:         []string{"--selection", fullSelection},
			wantGranules: 3,
			wantAllowed:  true,
		},
		{
			name:         "unsafe counts overlaps",
			args:         []string{"--selection", fullSelection, "--unsafe"},
			wantGranules: 3,
			wantAllowed:  true,
		},
		{
			name:    "expansion bound",
			args:    []string{"--selection", fullSelection, "--max-granules", "2"},
			wantErr: true,
		},
		{
			name:    "bad origin",
			args:    []string{"--selection", fullSelection, "--origin", "batch"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--json", "estimate", "--dataset", "testdata/sis.json"}, tt.args...)
			out, err := run(t, args...)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got output %s", out)
				}
				return
			}
			if err != nil {
				t.Fatalf("estimate failed: %v", err)
			}

			var got estimateOutput
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("invalid output %q: %v", out, err)
			}
			if got.Granules != tt.wantGranules || got.Allowed != tt.wantAllowed {
				t.Errorf("granules = %d, allowed = %v", got.Granules, got.Allowed)
			}
			if got.Cost.ID != "fields" || got.Cost.Limit != 2 {
				t.Errorf("cost = %+v", got.Cost)
			}
		})
	}
}

func TestEstimateCommand_FlagErrors(t *testing.T) {
	if _, err := run(t, "estimate", "--selection", fullSelection); err == nil {
		t.Error("expected an error without --dataset or --db")
	}
	if _, err := run(t, "estimate", "--dataset", "testdata/sis.json", "--audit"); err == nil {
		t.Error("expected an error for --audit without --db")
	}
	if _, err := run(t, "estimate", "--dataset", "testdata/sis.json", "--selection", "{"); err == nil {
		t.Error("expected an error for a malformed selection")
	}
}

func TestCatalogueWorkflow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "constrictor.db")

	if _, err := run(t, "catalogue", "import", "testdata/sis.json", "--db", db); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	out, err := run(t, "--json", "catalogue", "list", "--db", db)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var listed []datasetSummary
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("invalid output %q: %v", out, err)
	}
	if len(listed) != 1 || listed[0].ID != "sis-example" || listed[0].Title != "Seasonal example" {
		t.Errorf("listed = %+v", listed)
	}

	out, err = run(t, "--json", "estimate", "--db", db, "--id", "sis-example", "--audit", "--selection", fullSelection)
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	var est estimateOutput
	if err := json.Unmarshal([]byte(out), &est); err != nil {
		t.Fatalf("invalid output %q: %v", out, err)
	}

	out, err = run(t, "--json", "catalogue", "estimates", "--db", db, "--dataset", "sis-example")
	if err != nil {
		t.Fatalf("estimates failed: %v", err)
	}
	var audited []struct {
		ID       string `json:"id"`
		Granules int64  `json:"granules"`
		Allowed  bool   `json:"allowed"`
	}
	if err := json.Unmarshal([]byte(out), &audited); err != nil {
		t.Fatalf("invalid output %q: %v", out, err)
	}
	if len(audited) != 1 || audited[0].ID != est.RequestID || audited[0].Granules != 3 || !audited[0].Allowed {
		t.Errorf("audited = %+v", audited)
	}

	if _, err := run(t, "catalogue", "delete", "sis-example", "--db", db); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := run(t, "catalogue", "show", "sis-example", "--db", db); err == nil {
		t.Error("expected an error showing a deleted dataset")
	}
}
