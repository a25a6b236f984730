package scanner

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

var urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>"')\]]+|(?:www\.)[^\s<>"')\]]+`)

// Free and frequently abused TLDs, plus TLDs that mimic file extensions.
var suspiciousTLDs = []string{
	".tk", ".ml", ".ga", ".cf", ".gq",
	".xyz", ".top", ".work", ".click",
	".zip", ".mov",
}

type urlIndicator struct {
	name    string
	pattern *regexp.Regexp
	message string
}

var urlIndicators = []urlIndicator{
	{
		"ip_address_url",
		regexp.MustCompile(`https?://\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`),
		"URL uses raw IP address instead of domain",
	},
	{
		"homograph",
		regexp.MustCompile(`https?://[^\s]*[\x{0400}-\x{04FF}]`),
		"Possible homograph attack in URL",
	},
	{
		"data_uri",
		regexp.MustCompile(`data:(?:text|application)/[^;]+;base64,`),
		"Data URI detected, possible payload delivery",
	},
	{
		"url_shortener",
		regexp.MustCompile(`https?://(?:bit\.ly|tinyurl\.com|t\.co|goo\.gl|is\.gd|v\.gd|buff\.ly|ow\.ly|rebrand\.ly|short\.io)/`),
		"URL shortener detected, destination unknown",
	},
	{
		"excessive_subdomains",
		regexp.MustCompile(`https?://(?:[^./]+\.){4,}[^./]+`),
		"Suspicious number of subdomains",
	},
}

// MaliciousURLScanner flags suspicious URLs in model output: abused
// TLDs, raw IP hosts, homograph tricks, shorteners, and data URIs.
type MaliciousURLScanner struct{}

func NewMaliciousURLScanner() *MaliciousURLScanner { return &MaliciousURLScanner{} }

func (s *MaliciousURLScanner) Name() string { return "malicious_url" }

func (s *MaliciousURLScanner) Scan(_ context.Context, text string, _ scan.Context) (scan.ScanResult, error) {
	var findings []scan.Finding
	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		findings = append(findings, s.checkURL(raw, loc[0], loc[1])...)
	}
	return newResult(s.Name(), text, findings), nil
}

func (s *MaliciousURLScanner) checkURL(raw string, start, end int) []scan.Finding {
	var findings []scan.Finding

	target := raw
	if !strings.HasPrefix(strings.ToLower(raw), "http") {
		target = "https://" + raw
	}
	if u, err := url.Parse(target); err == nil {
		host := u.Hostname()
		for _, tld := range suspiciousTLDs {
			if strings.HasSuffix(host, tld) {
				findings = append(findings, scan.Finding{
					Scanner:  s.Name(),
					Category: "malicious_url",
					Score:    scoreMedium,
					Start:    start,
					End:      end,
					Message:  fmt.Sprintf("URL uses suspicious TLD: %s", tld),
				})
				break
			}
		}
	}

	for _, ind := range urlIndicators {
		if ind.pattern.MatchString(raw) {
			findings = append(findings, scan.Finding{
				Scanner:  s.Name(),
				Category: "malicious_url",
				Score:    scoreMedium,
				Start:    start,
				End:      end,
				Message:  ind.message,
			})
		}
	}
	return findings
}
