package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "dot separator", input: "12.34", want: "12.34"},
		{name: "comma separator", input: "12,34", want: "12.34"},
		{name: "integer", input: "500", want: "500"},
		{name: "rounds half up", input: "12.345", want: "12.35"},
		{name: "rounds down", input: "12.344", want: "12.34"},
		{name: "leading whitespace", input: "  80 ", want: "80"},
		{name: "empty", input: "", wantErr: true},
		{name: "negative", input: "-5", wantErr: true},
		{name: "explicit plus", input: "+5", wantErr: true},
		{name: "zero", input: "0", wantErr: true},
		{name: "rounds to zero", input: "0.001", wantErr: true},
		{name: "letters", input: "abc", wantErr: true},
		{name: "two separators", input: "1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) = %s, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) error: %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   decimal.Decimal
		wantErr bool
	}{
		{name: "positive two places", input: decimal.RequireFromString("10.50")},
		{name: "positive integer", input: decimal.NewFromInt(500)},
		{name: "zero", input: decimal.Zero, wantErr: true},
		{name: "negative", input: decimal.NewFromInt(-1), wantErr: true},
		{name: "sub-cent precision", input: decimal.RequireFromString("1.005"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAmount(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestMedian(t *testing.T) {
	d := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }

	tests := []struct {
		name    string
		amounts []decimal.Decimal
		want    string
	}{
		{name: "empty", amounts: nil, want: "0"},
		{name: "single", amounts: []decimal.Decimal{d("42")}, want: "42"},
		{name: "odd count unsorted", amounts: []decimal.Decimal{d("80"), d("120"), d("70")}, want: "80"},
		{name: "even count takes lower middle", amounts: []decimal.Decimal{d("10"), d("20"), d("30"), d("40")}, want: "20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Median(tt.amounts)
			if got.String() != tt.want {
				t.Errorf("Median() = %s, want %s", got, tt.want)
			}
		})
	}
}
