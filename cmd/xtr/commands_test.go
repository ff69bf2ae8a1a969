package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestParseTranslations(t *testing.T) {
	tests := []struct {
		name    string
		specs   []string
		want    map[int]string
		wantErr bool
	}{
		{name: "none", specs: nil, want: map[int]string{}},
		{name: "one based rows", specs: []string{"1=id", " 3 = fr "}, want: map[int]string{0: "id", 2: "fr"}},
		{name: "missing lang separator", specs: []string{"2"}, wantErr: true},
		{name: "row zero", specs: []string{"0=en"}, wantErr: true},
		{name: "not a number", specs: []string{"x=en"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTranslations(tt.specs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("row %d = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestPromptConfirmer(t *testing.T) {
	tests := []struct {
		input     string
		assumeYes bool
		want      bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
		{input: "", assumeYes: true, want: true},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		c := &promptConfirmer{in: strings.NewReader(tt.input), out: &out, assumeYes: tt.assumeYes}
		got, err := c.Confirm(context.Background(), "Delete 1 item?")
		if err != nil {
			t.Fatalf("Confirm(%q) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !tt.assumeYes && !strings.Contains(out.String(), "[y/N]") {
			t.Errorf("prompt not shown: %q", out.String())
		}
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", 50)
	if got := truncate(long, 20); len([]rune(got)) != 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 20); got != "short" {
		t.Errorf("short string changed: %q", got)
	}
	if got := truncate(long, 5); got != long {
		t.Error("tiny widths should not truncate")
	}
}

func TestMoney(t *testing.T) {
	if got := money(0); got != "-" {
		t.Errorf("money(0) = %q", got)
	}
	if got := money(1234567.5); got != "1,234,567.5" {
		t.Errorf("money = %q", got)
	}
}
