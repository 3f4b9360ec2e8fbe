// Package protection decides whether a sender domain belongs to an
// institution whose mail must never be deleted automatically.
package protection

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed protected_domains.yaml
var builtinList []byte

// List is the on-disk format of a protected domain list
type List struct {
	Categories map[string][]string `yaml:"categories"`
	Patterns   []string            `yaml:"patterns"`
}

// Match describes why a domain is protected
type Match struct {
	Protected bool
	Category  string
	Matched   string
	Reason    string
}

// Checker resolves protection for sender domains
type Checker struct {
	domains  map[string]string
	patterns []*regexp.Regexp
	logger   *zap.Logger
}

// ParseList decodes a YAML domain list
func ParseList(data []byte) (List, error) {
	var l List
	if err := yaml.Unmarshal(data, &l); err != nil {
		return List{}, fmt.Errorf("failed to parse protected domain list: %w", err)
	}
	return l, nil
}

// LoadListFile reads a YAML domain list from disk
func LoadListFile(path string) (List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return List{}, fmt.Errorf("failed to read protected domain list: %w", err)
	}
	return ParseList(data)
}

// BuiltinList returns the embedded default list
func BuiltinList() (List, error) {
	return ParseList(builtinList)
}

// NewChecker merges the given lists into one checker
func NewChecker(logger *zap.Logger, lists ...List) (*Checker, error) {
	c := &Checker{
		domains: make(map[string]string),
		logger:  logger,
	}

	for _, l := range lists {
		for category, domains := range l.Categories {
			for _, d := range domains {
				d = normalizeDomain(d)
				if d == "" {
					continue
				}
				c.domains[d] = category
			}
		}
		for _, p := range l.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("invalid protected domain pattern %q: %w", p, err)
			}
			c.patterns = append(c.patterns, re)
		}
	}

	logger.Info("Initialized protected domain checker",
		zap.Int("domains", len(c.domains)),
		zap.Int("patterns", len(c.patterns)))

	return c, nil
}

// Check returns the protection match for a domain or an email address
func (c *Checker) Check(domain string) (Match, error) {
	d := normalizeDomain(domain)
	if d == "" || strings.ContainsAny(d, " \t/") || strings.HasPrefix(d, ".") || strings.HasSuffix(d, ".") {
		return Match{}, fmt.Errorf("invalid sender domain %q", domain)
	}

	// Walk from the full domain to its parents: mail.chase.com, chase.com, com.
	for candidate := d; candidate != ""; candidate = parent(candidate) {
		if category, ok := c.domains[candidate]; ok {
			return Match{
				Protected: true,
				Category:  category,
				Matched:   candidate,
				Reason:    fmt.Sprintf("%s domain %s", category, candidate),
			}, nil
		}
	}

	for _, re := range c.patterns {
		if re.MatchString(d) {
			return Match{
				Protected: true,
				Category:  "pattern",
				Matched:   re.String(),
				Reason:    fmt.Sprintf("domain matches pattern %s", re.String()),
			}, nil
		}
	}

	return Match{Reason: "no protected domain matched"}, nil
}

// IsProtected implements core.DomainProtector
func (c *Checker) IsProtected(_ context.Context, domain string) (bool, error) {
	m, err := c.Check(domain)
	if err != nil {
		return false, err
	}
	if m.Protected {
		c.logger.Debug("Domain is protected",
			zap.String("domain", domain),
			zap.String("category", m.Category),
			zap.String("matched", m.Matched))
	}
	return m.Protected, nil
}

// Domains returns the exact-match entries, sorted
func (c *Checker) Domains() []string {
	out := make([]string, 0, len(c.domains))
	for d := range c.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func normalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	return strings.Trim(s, "<>[]()")
}

func parent(domain string) string {
	i := strings.IndexByte(domain, '.')
	if i < 0 {
		return ""
	}
	return domain[i+1:]
}
