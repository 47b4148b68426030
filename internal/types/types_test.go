package types

import "testing"

func TestNewFlightplanNaming(t *testing.T) {
	cases := []struct {
		filename string
		name     string
	}{
		{"survey.mavlink", "survey"},
		{"internal_000/flightplans/flightPlan.mavlink", "flightPlan"},
		{"noext", "noext"},
		{"dir/sub/m1.mavlink", "m1"},
	}
	for _, c := range cases {
		fp := NewFlightplan(c.filename, "QGC WPL 110\n")
		if fp.Name != c.name {
			t.Errorf("NewFlightplan(%q).Name = %q, want %q", c.filename, fp.Name, c.name)
		}
	}
}

func TestFlightplanFilenameRoundTrip(t *testing.T) {
	fp := NewFlightplan("survey.mavlink", "x")
	if fp.Filename() != "survey.mavlink" {
		t.Fatalf("Filename() = %q, want survey.mavlink", fp.Filename())
	}
}

func TestEmptyFlightplanSentinel(t *testing.T) {
	if !EmptyFlightplan().IsEmpty() {
		t.Fatal("canonical empty plan reports non-empty")
	}
	if (Flightplan{Name: "named"}).IsEmpty() != true {
		t.Fatal("plan without mission content must count as empty")
	}
	if (Flightplan{Name: "m1", Mavlink: "QGC WPL 110\n"}).IsEmpty() {
		t.Fatal("plan with content reports empty")
	}
}
