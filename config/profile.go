package config

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed jarvis.yaml
var defaultProfileYAML []byte

// Logical product fields resolved through the selector table.
const (
	FieldTitle            = "title"
	FieldShortDescription = "short_description"
	FieldActualPrice      = "actual_price"
	FieldOriginalPrice    = "original_price"
)

// FieldRule is an ordered selector fallback chain for one logical field.
// Attr selects an attribute value instead of the element text.
type FieldRule struct {
	Selectors []string `yaml:"selectors"`
	Attr      string   `yaml:"attr,omitempty"`
}

// CategoryRules drives category discovery from the storefront menu.
type CategoryRules struct {
	LinkSelectors []string `yaml:"link_selectors"`
	Markers       []string `yaml:"markers"`
}

// ProductRules identifies product links on listing pages.
type ProductRules struct {
	LinkSelectors   []string `yaml:"link_selectors"`
	ExcludePaths    []string `yaml:"exclude_paths"`
	IncludePatterns []string `yaml:"include_patterns"`
}

// PaginationRules holds the selectors behind the has-next signals.
type PaginationRules struct {
	NextSelectors      []string `yaml:"next_selectors"`
	RangeSelectors     []string `yaml:"range_selectors"`
	RangePattern       string   `yaml:"range_pattern"`
	ContainerSelectors []string `yaml:"container_selectors"`
	FullPageThreshold  int      `yaml:"full_page_threshold"`
	RelNextSelector    string   `yaml:"rel_next_selector"`
}

// ImageRules decides which <img> elements belong to a product.
type ImageRules struct {
	Extensions   []string `yaml:"extensions"`
	BrandMarkers []string `yaml:"brand_markers"`
	Denylist     []string `yaml:"denylist"`
}

// DescriptionRules locates the notes and Q&A sections of a product page.
type DescriptionRules struct {
	MarkerSelector   string `yaml:"marker_selector"`
	NotesLabel       string `yaml:"notes_label"`
	QALabel          string `yaml:"qa_label"`
	QuestionStyle    string `yaml:"question_style"`
	Disclaimer       string `yaml:"disclaimer"`
	DisclaimerWindow int    `yaml:"disclaimer_window"`
}

// Profile captures everything site-specific about the storefront.
type Profile struct {
	SiteName          string               `yaml:"site_name"`
	ItemsPerPageParam string               `yaml:"items_per_page_param"`
	PageParam         string               `yaml:"page_param"`
	Fields            map[string]FieldRule `yaml:"fields"`
	TitleFallbacks    []string             `yaml:"title_fallbacks"`
	Categories        CategoryRules        `yaml:"categories"`
	Products          ProductRules         `yaml:"products"`
	Pagination        PaginationRules      `yaml:"pagination"`
	Images            ImageRules           `yaml:"images"`
	Description       DescriptionRules     `yaml:"description"`

	includePatterns []*regexp.Regexp
	rangePattern    *regexp.Regexp
	titleSuffix     *regexp.Regexp
}

// DefaultProfile returns the embedded Jarvis storefront profile.
func DefaultProfile() (*Profile, error) {
	return ParseProfile(defaultProfileYAML)
}

// LoadProfile reads a profile from path, or the embedded default when path is empty.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks required rules and compiles the regular expressions.
func (p *Profile) Validate() error {
	if p.ItemsPerPageParam == "" {
		return fmt.Errorf("profile: items_per_page_param cannot be empty")
	}
	if p.PageParam == "" {
		return fmt.Errorf("profile: page_param cannot be empty")
	}
	if len(p.Products.LinkSelectors) == 0 {
		return fmt.Errorf("profile: products.link_selectors cannot be empty")
	}
	if len(p.Products.IncludePatterns) == 0 {
		return fmt.Errorf("profile: products.include_patterns cannot be empty")
	}
	if rule, ok := p.Fields[FieldTitle]; !ok || len(rule.Selectors) == 0 {
		return fmt.Errorf("profile: fields.%s needs at least one selector", FieldTitle)
	}
	if p.Pagination.FullPageThreshold < 0 {
		return fmt.Errorf("profile: pagination.full_page_threshold cannot be negative")
	}
	if p.Description.DisclaimerWindow < 0 || p.Description.DisclaimerWindow > 1000 {
		return fmt.Errorf("profile: description.disclaimer_window must be between 0 and 1000")
	}

	p.includePatterns = p.includePatterns[:0]
	for _, pattern := range p.Products.IncludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("profile: include pattern %q: %w", pattern, err)
		}
		p.includePatterns = append(p.includePatterns, re)
	}

	p.rangePattern = nil
	if p.Pagination.RangePattern != "" {
		re, err := regexp.Compile(p.Pagination.RangePattern)
		if err != nil {
			return fmt.Errorf("profile: range pattern %q: %w", p.Pagination.RangePattern, err)
		}
		p.rangePattern = re
	}

	p.titleSuffix = nil
	if p.SiteName != "" {
		p.titleSuffix = regexp.MustCompile(`(?i)\s+-\s+` + regexp.QuoteMeta(p.SiteName) + `[^-]*$`)
	}
	return nil
}

// IncludePatterns returns the compiled product path patterns.
func (p *Profile) IncludePatterns() []*regexp.Regexp {
	return p.includePatterns
}

// RangePattern returns the compiled item-range pattern, or nil.
func (p *Profile) RangePattern() *regexp.Regexp {
	return p.rangePattern
}

// TitleSuffix matches a trailing " - <site name>" on page titles, or is nil
// when the profile has no site name.
func (p *Profile) TitleSuffix() *regexp.Regexp {
	return p.titleSuffix
}

// Field returns the rule for a logical field.
func (p *Profile) Field(name string) FieldRule {
	return p.Fields[name]
}
