package constraints

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func set(values ...string) ValueSet {
	return NewValueSet(values...)
}

func TestPossibleValues(t *testing.T) {
	form := Form{
		"level": set("500", "850"),
		"time":  set("12:00", "00:00"),
		"param": set("Z", "T"),
		"stat":  set("mean"),
	}
	records := []Record{
		{"level": set("500"), "param": set("Z", "T"), "time": set("12:00", "00:00")},
		{"level": set("850"), "param": set("T"), "time": set("12:00", "00:00")},
		{"level": set("500"), "param": set("Z", "T"), "stat": set("mean")},
	}

	tests := []struct {
		name      string
		selection Selection
		want      Form
	}{
		{
			name:      "stat narrows to the record naming it",
			selection: Selection{"stat": set("mean")},
			want: Form{
				"level": set("500"),
				"time":  set(),
				"param": set("Z", "T"),
				"stat":  set("mean"),
			},
		},
		{
			name:      "time excludes the stat record",
			selection: Selection{"time": set("12:00")},
			want: Form{
				"level": set("500", "850"),
				"time":  set("12:00", "00:00"),
				"param": set("Z", "T"),
				"stat":  set(),
			},
		},
		{
			name:      "infeasible combination empties everything",
			selection: Selection{"stat": set("mean"), "time": set("12:00")},
			want: Form{
				"level": set(),
				"time":  set(),
				"param": set(),
				"stat":  set(),
			},
		},
		{
			name:      "param Z drops the T-only record",
			selection: Selection{"param": set("Z")},
			want: Form{
				"level": set("500"),
				"time":  set("12:00", "00:00"),
				"param": set("Z", "T"),
				"stat":  set("mean"),
			},
		},
		{
			name:      "full level selection keeps every record",
			selection: Selection{"level": set("500", "850")},
			want: Form{
				"level": set("500", "850"),
				"time":  set("12:00", "00:00"),
				"param": set("Z", "T"),
				"stat":  set("mean"),
			},
		},
		{
			name:      "empty selection keeps every record",
			selection: Selection{},
			want: Form{
				"level": set("500", "850"),
				"time":  set("12:00", "00:00"),
				"param": set("Z", "T"),
				"stat":  set("mean"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PossibleValues(form, tt.selection, records)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("PossibleValues() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPossibleValues_AlwaysValidIgnored(t *testing.T) {
	form := Form{
		"level":  set("500", "850"),
		"param":  set("Z", "T"),
		"number": set("1", "2", "3"),
	}
	records := []Record{
		{"level": set("500"), "param": set("Z")},
		{"level": set("850"), "param": set("T")},
	}

	// number is not restricted, so a value outside every record does not block narrowing.
	got := PossibleValues(form, Selection{"number": set("7"), "level": set("850")}, records)
	want := Form{
		"level":  set("850"),
		"param":  set("T"),
		"number": set("1", "2", "3"),
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("PossibleValues() mismatch (-want +got):\n%s", diff)
	}
}

func TestPossibleValues_NoConstraints(t *testing.T) {
	form := Form{
		"level": set("500", "850"),
		"param": set("Z", "T"),
	}
	selections := []Selection{
		{},
		{"level": set("500")},
		{"param": set("X")},
	}

	for _, sel := range selections {
		got := PossibleValues(form, sel, nil)
		// with no records every parameter is always valid
		if diff := cmp.Diff(form, got); diff != "" {
			t.Errorf("PossibleValues(%v) mismatch (-want +got):\n%s", sel, diff)
		}
	}
}

func TestFormState(t *testing.T) {
	form := Form{
		"level": set("500", "850"),
		"param": set("Z", "T"),
	}
	records := []Record{
		{"level": set("500"), "param": set("Z")},
		{"level": set("850"), "param": set("T")},
	}

	got := FormState(form, Selection{"level": set("500")}, records)
	want := Form{
		"level": set("500", "850"),
		"param": set("Z"),
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("FormState() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormState_SelectedKeepFullDomain(t *testing.T) {
	form := Form{
		"level": set("500", "850", "1000"),
		"param": set("Z", "T"),
		"step":  set("24", "36", "48"),
	}
	records := []Record{
		{"level": set("500"), "param": set("Z", "T"), "step": set("24", "36", "48")},
		{"level": set("1000"), "param": set("Z"), "step": set("24", "48")},
		{"level": set("850"), "param": set("T"), "step": set("36", "48")},
	}
	selections := []Selection{
		{"level": set("850"), "param": set("Z")},
		{"step": set("36")},
		{"param": set("T"), "level": set("500", "850"), "step": set("36")},
	}

	for _, sel := range selections {
		got := FormState(form, sel, records)
		for name := range sel {
			if !got[name].Equal(form[name]) {
				t.Errorf("FormState(%v)[%s] = %v, want full domain %v", sel, name, got[name].Sorted(), form[name].Sorted())
			}
		}
	}
}

func TestFormState_IgnoresUnknownSelectionKeys(t *testing.T) {
	form := Form{"param": set("Z", "T")}
	records := []Record{{"param": set("Z")}}

	got := FormState(form, Selection{"area": set("europe")}, records)
	if _, ok := got["area"]; ok {
		t.Errorf("FormState() leaked non-form key: %v", got)
	}
	if !got["param"].Equal(set("Z")) {
		t.Errorf("FormState()[param] = %v, want [Z]", got["param"].Sorted())
	}
}

func TestApplyConstraints(t *testing.T) {
	form := Form{
		"level":  set("500", "850"),
		"param":  set("Z", "T"),
		"number": set("1"),
	}
	records := []Record{
		{"level": set("500"), "param": set("Z")},
		{"level": set("850"), "param": set("T")},
	}

	got := ApplyConstraints(form, Selection{"level": set("500")}, records)
	want := map[string][]string{
		"level":  {"500", "850"},
		"param":  {"Z"},
		"number": {"1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ApplyConstraints() mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyConstraints_EmptyListsNotNil(t *testing.T) {
	form := Form{"level": set("500"), "param": set("Z")}
	records := []Record{{"level": set("500"), "param": set("Z")}}

	got := ApplyConstraints(form, Selection{"level": set("850")}, records)
	if got["param"] == nil || len(got["param"]) != 0 {
		t.Errorf("ApplyConstraints()[param] = %#v, want empty non-nil list", got["param"])
	}
}

func TestAlwaysValidParams(t *testing.T) {
	form := Form{
		"level":  set("500", "850"),
		"param":  set("Z", "T"),
		"number": set("1", "2", "3"),
		"model":  set("a", "b"),
	}
	records := []Record{
		{"level": set("500"), "param": set("Z", "T")},
		{"level": set("850"), "param": set("T")},
	}

	got := AlwaysValidParams(form, records)
	want := Form{
		"number": set("1", "2", "3"),
		"model":  set("a", "b"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AlwaysValidParams() mismatch (-want +got):\n%s", diff)
	}

	restricted := RestrictedParams(records)
	if diff := cmp.Diff(set("level", "param"), restricted); diff != "" {
		t.Errorf("RestrictedParams() mismatch (-want +got):\n%s", diff)
	}
}
