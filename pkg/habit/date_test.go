package habit

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{"2024-03-15", Date{2024, time.March, 15}, false},
		{"2024-02-29", Date{2024, time.February, 29}, false},
		{"2023-02-29", Date{}, true},
		{"2024-3-15", Date{}, true},
		{"15/03/2024", Date{}, true},
		{"", Date{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2024, time.February, 28)

	if got := d.AddDays(1); got != (Date{2024, time.February, 29}) {
		t.Errorf("AddDays(1) = %v", got)
	}
	if got := d.AddDays(2); got != (Date{2024, time.March, 1}) {
		t.Errorf("AddDays(2) = %v", got)
	}
	if got := NewDate(2024, time.January, 1).AddDays(-1); got != (Date{2023, time.December, 31}) {
		t.Errorf("AddDays(-1) across a year = %v", got)
	}
	if got := NewDate(2024, time.October, 32); got != (Date{2024, time.November, 1}) {
		t.Errorf("NewDate normalization = %v", got)
	}

	if !d.Before(d.AddDays(1)) || d.AddDays(1).Before(d) || d.Before(d) {
		t.Error("Before() ordering is wrong")
	}
	if got := NewDate(2024, time.March, 18).Weekday(); got != time.Monday {
		t.Errorf("Weekday() = %v, want Monday", got)
	}
}

func TestDateOfUsesLocation(t *testing.T) {
	east := time.FixedZone("UTC+10", 10*60*60)
	instant := time.Date(2024, time.March, 15, 20, 0, 0, 0, time.UTC)

	if got := DateOf(instant); got != (Date{2024, time.March, 15}) {
		t.Errorf("DateOf(UTC) = %v", got)
	}
	if got := DateOf(instant.In(east)); got != (Date{2024, time.March, 16}) {
		t.Errorf("DateOf(UTC+10) = %v", got)
	}
}

func TestDateJSON(t *testing.T) {
	d := Date{2024, time.March, 5}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"2024-03-05"` {
		t.Errorf("Marshal() = %s, want \"2024-03-05\"", data)
	}

	var back Date
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back != d {
		t.Errorf("Unmarshal() = %v, want %v", back, d)
	}

	if _, err := json.Marshal(Date{}); err == nil {
		t.Error("Marshal(zero date) should fail")
	}
	if err := json.Unmarshal([]byte(`"not-a-date"`), &back); err == nil {
		t.Error("Unmarshal(invalid) should fail")
	}
}
