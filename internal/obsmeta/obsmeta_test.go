package obsmeta

import (
	"math"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	valid := Observation{
		Telescope: "ARO",
		Source:    "B1937+21",
		RA:        "19:39:38.56",
		Dec:       "+21:34:59.1",
		Mode:      ModePSR,
		Frequency: 400e6,
		Bandwidth: -200e6,
		NChan:     1024,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(o *Observation)
	}{
		{"missing mode", func(o *Observation) { o.Mode = "" }},
		{"unknown mode", func(o *Observation) { o.Mode = "DRIFT" }},
		{"missing telescope", func(o *Observation) { o.Telescope = "" }},
		{"bad ra", func(o *Observation) { o.RA = "25:00:00" }},
		{"bad dec", func(o *Observation) { o.Dec = "+91:00:00" }},
		{"malformed coordinate", func(o *Observation) { o.RA = "19h39m38s" }},
		{"negative channels", func(o *Observation) { o.NChan = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := valid
			tc.mutate(&o)
			if err := o.Validate(); err == nil {
				t.Error("Validate() accepted an invalid observation")
			}
		})
	}
}

func TestSideband(t *testing.T) {
	o := Observation{Bandwidth: 200e6}
	if o.Sideband() != 1 {
		t.Errorf("Sideband() = %d, want 1", o.Sideband())
	}
	o.Bandwidth = -200e6
	if o.Sideband() != -1 {
		t.Errorf("Sideband() = %d, want -1", o.Sideband())
	}
}

func TestParseRA(t *testing.T) {
	got, err := ParseRA("06:30:00")
	if err != nil {
		t.Fatalf("ParseRA() error = %v", err)
	}
	if math.Abs(got-97.5) > 1e-9 {
		t.Errorf("ParseRA(06:30:00) = %f, want 97.5", got)
	}
	if _, err = ParseRA("12:61:00"); err == nil {
		t.Error("ParseRA() accepted 61 minutes")
	}
}

func TestParseDec(t *testing.T) {
	got, err := ParseDec("-01:30:00")
	if err != nil {
		t.Fatalf("ParseDec() error = %v", err)
	}
	if math.Abs(got+1.5) > 1e-9 {
		t.Errorf("ParseDec(-01:30:00) = %f, want -1.5", got)
	}
}

func TestMJDRoundTrip(t *testing.T) {
	// J2000.0 noon is MJD 51544.5.
	ts := time.Date(2000, 1, 1, 12, 0, 0, 250_000_000, time.UTC)
	day, sec, frac := SplitMJD(ts)
	if day != 51544 {
		t.Errorf("day = %d, want 51544", day)
	}
	if sec != 12*3600 {
		t.Errorf("sec = %d, want %d", sec, 12*3600)
	}
	if math.Abs(frac-0.25) > 1e-12 {
		t.Errorf("frac = %f, want 0.25", frac)
	}

	back := MJDTime(day, sec, frac)
	if !back.Equal(ts) {
		t.Errorf("MJDTime() = %s, want %s", back, ts)
	}
}
