package evidence

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/ppiankov/aem/internal/model"
)

// AuthorityClassifier assigns an authority tier to sources whose type was not declared
type AuthorityClassifier struct {
	config       *model.AuthorityConfig
	primaryMap   map[string]bool
	secondaryMap map[string]bool
	pathPatterns []*compiledPattern
}

type compiledPattern struct {
	pattern *regexp.Regexp
	tier    model.AuthorityTier
}

// NewAuthorityClassifier creates a new authority classifier
func NewAuthorityClassifier(config *model.AuthorityConfig) *AuthorityClassifier {
	if config == nil {
		config = &model.DefaultConfig().Authority
	}

	classifier := &AuthorityClassifier{
		config:       config,
		primaryMap:   make(map[string]bool),
		secondaryMap: make(map[string]bool),
	}

	for _, domain := range config.PrimaryDomains {
		classifier.primaryMap[strings.ToLower(domain)] = true
	}
	for _, domain := range config.SecondaryDomains {
		classifier.secondaryMap[strings.ToLower(domain)] = true
	}

	for _, pp := range config.PathPatterns {
		re, err := regexp.Compile(pp.Pattern)
		if err != nil {
			continue
		}
		classifier.pathPatterns = append(classifier.pathPatterns, &compiledPattern{
			pattern: re,
			tier:    parseTierString(pp.Tier),
		})
	}

	return classifier
}

// Classify classifies a URL into an authority tier
func (a *AuthorityClassifier) Classify(rawURL string) model.AuthorityTier {
	host, path := hostAndPath(rawURL)
	if host == "" {
		return model.TierUnknown
	}

	if tierStr, ok := a.config.DomainMap[host]; ok {
		return parseTierString(tierStr)
	}

	if matchesDomain(host, a.primaryMap) {
		return model.TierPrimary
	}
	if matchesDomain(host, a.secondaryMap) {
		return model.TierSecondary
	}

	for _, cp := range a.pathPatterns {
		if cp.pattern.MatchString(path) {
			return cp.tier
		}
	}

	// Public-sector and academic suffixes
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".edu") || strings.HasSuffix(host, ".ac.uk") {
		return model.TierPrimary
	}

	return model.TierTertiary
}

// SourceType maps a URL's authority tier to an evidence source type
func (a *AuthorityClassifier) SourceType(rawURL string) string {
	if a.Classify(rawURL) == model.TierPrimary {
		return model.SourceTypePrimary
	}
	return model.SourceTypeSecondary
}

// matchesDomain reports whether host equals or is a subdomain of any listed domain
func matchesDomain(host string, domains map[string]bool) bool {
	if domains[host] {
		return true
	}
	for d := range domains {
		if strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// parseTierString converts a tier string to AuthorityTier
func parseTierString(tier string) model.AuthorityTier {
	switch strings.ToLower(tier) {
	case "primary", "1":
		return model.TierPrimary
	case "secondary", "2":
		return model.TierSecondary
	default:
		return model.TierTertiary
	}
}

// hostAndPath extracts the lower-cased host without port, and the path
func hostAndPath(raw string) (string, string) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return "", ""
	}
	return strings.ToLower(parsed.Hostname()), parsed.Path
}

// RegistrableDomain returns the eTLD+1 of a URL. Hosts without a public suffix
// (IPs, localhost) are returned as-is; non-URL ids are returned lower-cased.
func RegistrableDomain(raw string) string {
	host, _ := hostAndPath(raw)
	if host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	if net.ParseIP(host) != nil {
		return host
	}
	host = strings.TrimPrefix(host, "www.")
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	return host
}
