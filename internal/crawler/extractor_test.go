package crawler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/placerank/internal/log"
)

const pageURL = "https://m.place.naver.com/restaurant/list?query=pasta&x=126.97&y=37.56&level=top&entry=pll"

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	return string(data)
}

func TestExtractor_RecordedList(t *testing.T) {
	t.Parallel()

	html := loadFixture(t, "list_47.html")
	items, dropped, err := NewExtractor(WithExtractorLogger(log.Discard())).Extract(html, pageURL)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	t.Run("47 organic rows with contiguous ranks", func(t *testing.T) {
		t.Parallel()
		if len(items) != 47 {
			t.Fatalf("expected 47 items, got %d", len(items))
		}
		for i, it := range items {
			if it.Rank != i+1 {
				t.Errorf("item %d has rank %d", i, it.Rank)
			}
			wantID := fmt.Sprintf("%d", 1000000+i+1)
			if it.PlaceID != wantID {
				t.Errorf("item %d place id = %q, want %q", i, it.PlaceID, wantID)
			}
			if it.Name != fmt.Sprintf("Place %d", i+1) {
				t.Errorf("item %d name = %q", i, it.Name)
			}
		}
	})

	t.Run("ads are excluded", func(t *testing.T) {
		t.Parallel()
		for _, it := range items {
			if strings.HasPrefix(it.PlaceID, "9") || strings.Contains(it.Name, "광고") {
				t.Errorf("ad row leaked into items: %+v", it)
			}
		}
	})

	t.Run("row without place id is dropped", func(t *testing.T) {
		t.Parallel()
		if len(dropped) != 1 {
			t.Fatalf("expected 1 dropped row, got %d", len(dropped))
		}
		if dropped[0].Position != 11 || dropped[0].Name != "Nameless Pop-up" {
			t.Errorf("unexpected dropped row: %+v", dropped[0])
		}
	})

	t.Run("primary selectors", func(t *testing.T) {
		t.Parallel()
		it := items[0]
		if it.Category != "한식" {
			t.Errorf("category = %q", it.Category)
		}
		if it.ReviewCount != 1001 {
			t.Errorf("review count = %d, want 1001", it.ReviewCount)
		}
		if it.SavedCount != 2001 {
			t.Errorf("saved count = %d, want 2001", it.SavedCount)
		}
		if it.Address != "서울 중구 세종대로 1" {
			t.Errorf("address = %q", it.Address)
		}
		want := "https://m.place.naver.com/restaurant/1000001?entry=pll&n_ad_group_type=10"
		if it.Link != want {
			t.Errorf("link = %q, want %q", it.Link, want)
		}
	})

	t.Run("fallback selectors", func(t *testing.T) {
		t.Parallel()
		it := items[1]
		if it.Category != "카페" {
			t.Errorf("category = %q", it.Category)
		}
		if it.ReviewCount != 2 {
			t.Errorf("review count = %d, want 2", it.ReviewCount)
		}
		if it.SavedCount != 0 {
			t.Errorf("saved count = %d, want 0", it.SavedCount)
		}
		if it.Address != "서울 중구 을지로 2" {
			t.Errorf("address = %q", it.Address)
		}
		if it.Link != "https://m.place.naver.com/place/1000002/home" {
			t.Errorf("link = %q", it.Link)
		}
	})

	t.Run("data-id fallback", func(t *testing.T) {
		t.Parallel()
		it := items[2]
		if it.PlaceID != "1000003" || it.Link != "" {
			t.Errorf("unexpected item: %+v", it)
		}
		if it.Category != "양식" {
			t.Errorf("category = %q", it.Category)
		}
	})
}

func TestExtractor_MaxItems(t *testing.T) {
	t.Parallel()

	html := loadFixture(t, "list_47.html")
	items, _, err := NewExtractor(WithMaxItems(10), WithExtractorLogger(log.Discard())).Extract(html, pageURL)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 10 {
		t.Fatalf("expected 10 items, got %d", len(items))
	}
	if items[9].Rank != 10 {
		t.Errorf("last rank = %d, want 10", items[9].Rank)
	}
}

func TestExtractor_Rows(t *testing.T) {
	t.Parallel()

	row := func(attrs, inner string) string {
		return fmt.Sprintf(`<li data-laim-exp-id=%s>%s</li>`, attrs, inner)
	}

	tests := []struct {
		name        string
		html        string
		wantIDs     []string
		wantDropped int
	}{
		{
			name:    "empty list",
			html:    `<ul></ul>`,
			wantIDs: nil,
		},
		{
			name:    "only ads",
			html:    row(`"undefined*e"`, `<a href="/restaurant/1">x</a>`) + row(`"undefined*e"`, `<a href="/restaurant/2">y</a>`),
			wantIDs: nil,
		},
		{
			name: "drop in the middle keeps ranks contiguous",
			html: row(`"a"`, `<a href="/restaurant/11">a</a>`) +
				row(`"b"`, `<span class="TYaxT">no id</span>`) +
				row(`"c"`, `<a href="/place/33/home">c</a>`),
			wantIDs:     []string{"11", "33"},
			wantDropped: 1,
		},
		{
			name:    "non numeric data-id is rejected",
			html:    `<li data-laim-exp-id="a" data-id="abc"><span class="TYaxT">x</span></li>`,
			wantIDs: nil, wantDropped: 1,
		},
		{
			name:    "rows without the experiment attribute are ignored",
			html:    `<li><a href="/restaurant/5">x</a></li>` + row(`"a"`, `<a href="/restaurant/6">y</a>`),
			wantIDs: []string{"6"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			items, dropped, err := NewExtractor(WithExtractorLogger(log.Discard())).
				Extract("<html><body><ul>"+tt.html+"</ul></body></html>", pageURL)
			if err != nil {
				t.Fatal(err)
			}
			if len(items) != len(tt.wantIDs) {
				t.Fatalf("got %d items, want %d", len(items), len(tt.wantIDs))
			}
			for i, it := range items {
				if it.PlaceID != tt.wantIDs[i] || it.Rank != i+1 {
					t.Errorf("item %d = (%s, rank %d), want (%s, rank %d)", i, it.PlaceID, it.Rank, tt.wantIDs[i], i+1)
				}
			}
			if len(dropped) != tt.wantDropped {
				t.Errorf("dropped %d, want %d", len(dropped), tt.wantDropped)
			}
		})
	}
}

func TestExtractor_InvalidPageURL(t *testing.T) {
	t.Parallel()

	if _, _, err := NewExtractor().Extract("<html></html>", "://bad"); err == nil {
		t.Error("expected error for invalid page url")
	}
}

func TestParseCount(t *testing.T) {
	t.Parallel()

	tests := map[string]int{"1,234": 1234, "0": 0, "": 0, "abc": 0, "999": 999}
	for in, want := range tests {
		if got := parseCount(in); got != want {
			t.Errorf("parseCount(%q) = %d, want %d", in, got, want)
		}
	}
}
