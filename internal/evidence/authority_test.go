package evidence

import (
	"testing"

	"github.com/ppiankov/aem/internal/model"
)

func TestAuthorityClassifier_Classify(t *testing.T) {
	classifier := NewAuthorityClassifier(&model.AuthorityConfig{
		PrimaryDomains:   []string{"doi.org", "Data.gov"},
		SecondaryDomains: []string{"wikipedia.org"},
		PathPatterns:     []model.PathPattern{{Pattern: "/datasets/", Tier: "primary"}, {Pattern: "[", Tier: "primary"}},
		DomainMap:        map[string]string{"vendor-blog.com": "secondary"},
	})

	tests := []struct {
		url      string
		expected model.AuthorityTier
		desc     string
	}{
		{"https://doi.org/10.1234/x", model.TierPrimary, "primary exact"},
		{"https://catalog.data.gov/dataset/1", model.TierPrimary, "primary subdomain, case-insensitive config"},
		{"https://doi.org:443/10.1/y", model.TierPrimary, "port stripped"},
		{"https://en.wikipedia.org/wiki/Trial", model.TierSecondary, "secondary subdomain"},
		{"https://vendor-blog.com/post", model.TierSecondary, "explicit domain map"},
		{"https://example.com/datasets/cpi", model.TierPrimary, "path pattern"},
		{"https://stats.example.gov/series", model.TierPrimary, ".gov suffix"},
		{"https://lab.ox.ac.uk/paper", model.TierPrimary, ".ac.uk suffix"},
		{"https://randomsite.com/page", model.TierTertiary, "unknown domain"},
		{"src_17", model.TierUnknown, "bare source id"},
		{"", model.TierUnknown, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := classifier.Classify(tt.url); got != tt.expected {
				t.Errorf("expected %v for %q, got %v", tt.expected, tt.url, got)
			}
		})
	}
}

func TestAuthorityClassifier_SourceType(t *testing.T) {
	classifier := NewAuthorityClassifier(nil)

	if got := classifier.SourceType("https://www.who.int/report"); got != model.SourceTypePrimary {
		t.Errorf("expected primary for who.int, got %s", got)
	}
	if got := classifier.SourceType("https://someblog.net/p"); got != model.SourceTypeSecondary {
		t.Errorf("expected secondary fallback, got %s", got)
	}
}

func TestParseTierString(t *testing.T) {
	tests := map[string]model.AuthorityTier{
		"primary":   model.TierPrimary,
		"PRIMARY":   model.TierPrimary,
		"1":         model.TierPrimary,
		"secondary": model.TierSecondary,
		"2":         model.TierSecondary,
		"tertiary":  model.TierTertiary,
		"":          model.TierTertiary,
	}
	for in, want := range tests {
		if got := parseTierString(in); got != want {
			t.Errorf("parseTierString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRegistrableDomain(t *testing.T) {
	tests := map[string]string{
		"https://www.same-domain.com/a":   "same-domain.com",
		"https://news.same-domain.com/b":  "same-domain.com",
		"https://research.bbc.co.uk/item": "bbc.co.uk",
		"http://127.0.0.1:8080/x":         "127.0.0.1",
		"http://localhost:3000/x":         "localhost",
		"SRC_1":                           "src_1",
	}
	for in, want := range tests {
		if got := RegistrableDomain(in); got != want {
			t.Errorf("RegistrableDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
