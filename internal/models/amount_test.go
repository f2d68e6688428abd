package models_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/garnizeh/cleardeal/internal/models"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1", want: "1"},
		{in: "1.0", want: "1"},
		{in: "0.1", want: "0.1"},
		{in: ".5", want: "0.5"},
		{in: " 2.500 ", want: "2.5"},
		{in: "0.000000000000000001", want: "0.000000000000000001"},
		{in: "0", want: "0"},
		{in: "", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "1.", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1.2.3", wantErr: true},
		{in: "0.0000000000000000001", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := models.ParseAmount(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %s", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q): %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Fatalf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAmount_Negative(t *testing.T) {
	if _, err := models.ParseAmount("-0.5"); !errors.Is(err, models.ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestAmount_Percent(t *testing.T) {
	tests := []struct {
		bounty string
		want   string
	}{
		{"1", "0.1"},
		{"1.5", "0.15"},
		{"0.000000000000000009", "0"},
		{"250", "25"},
	}
	for _, tt := range tests {
		got := models.MustParseAmount(tt.bounty).Percent(10)
		if got.String() != tt.want {
			t.Errorf("10%% of %s = %s, want %s", tt.bounty, got, tt.want)
		}
	}
}

func TestAmount_ZeroValue(t *testing.T) {
	var a models.Amount
	if a.Sign() != 0 {
		t.Fatalf("zero value sign = %d", a.Sign())
	}
	if a.String() != "0" {
		t.Fatalf("zero value string = %q", a.String())
	}
	if !a.Equal(models.MustParseAmount("0")) {
		t.Fatalf("zero value should equal 0")
	}
}

func TestAmount_JSON(t *testing.T) {
	var job struct {
		Bounty models.Amount `json:"bounty"`
	}
	if err := json.Unmarshal([]byte(`{"bounty":"1.25"}`), &job); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if job.Bounty.String() != "1.25" {
		t.Fatalf("got %s", job.Bounty)
	}
	if err := json.Unmarshal([]byte(`{"bounty":0.5}`), &job); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if job.Bounty.String() != "0.5" {
		t.Fatalf("got %s", job.Bounty)
	}

	b, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"bounty":"0.5"}` {
		t.Fatalf("marshal got %s", b)
	}

	if err := json.Unmarshal([]byte(`{"bounty":true}`), &job); err == nil {
		t.Fatalf("expected error for boolean bounty")
	}
}

func TestAmount_Scan(t *testing.T) {
	var a models.Amount
	for _, src := range []any{"3.1", []byte("3.1"), 3.1} {
		if err := a.Scan(src); err != nil {
			t.Fatalf("Scan(%v): %v", src, err)
		}
		if a.String() != "3.1" {
			t.Fatalf("Scan(%v) = %s", src, a)
		}
	}
	if err := a.Scan(int64(7)); err != nil || a.String() != "7" {
		t.Fatalf("Scan(int64) = %s, %v", a, err)
	}
	v, err := a.Value()
	if err != nil || v != "7" {
		t.Fatalf("Value = %v, %v", v, err)
	}
}
