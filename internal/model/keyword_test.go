package model

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeKeyword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "trims and collapses spaces", raw: "  강남   맛집 ", want: "강남 맛집"},
		{name: "tabs and newlines collapse", raw: "hongdae\t\ncafe", want: "hongdae cafe"},
		{name: "full width ascii folds", raw: "ＰＡＳＴＡ１", want: "PASTA1"},
		{name: "decomposed hangul composes", raw: "\u1100\u1161", want: "\uac00"},
		{name: "blank is rejected", raw: " \t ", wantErr: ErrEmptyKeyword},
		{name: "too long is rejected", raw: strings.Repeat("가", MaxKeywordLength+1), wantErr: ErrKeywordTooLong},
		{name: "exactly max is accepted", raw: strings.Repeat("a", MaxKeywordLength), want: strings.Repeat("a", MaxKeywordLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := NormalizeKeyword(tt.raw)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NormalizeKeyword(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeKeyword(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestKeywordRoute(t *testing.T) {
	t.Parallel()

	if got := (Keyword{Restaurant: true}).Route(); got != RouteRestaurant {
		t.Errorf("restaurant keyword route = %q", got)
	}
	if got := (Keyword{}).Route(); got != RoutePlace {
		t.Errorf("place keyword route = %q", got)
	}
}
