package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultProfile(t *testing.T) {
	p, err := DefaultProfile()
	if err != nil {
		t.Fatalf("default profile: %v", err)
	}
	if p.ItemsPerPageParam != "items_per_page" {
		t.Fatalf("items per page param = %q", p.ItemsPerPageParam)
	}
	if p.Pagination.FullPageThreshold != 76 {
		t.Fatalf("full page threshold = %d, want 76", p.Pagination.FullPageThreshold)
	}
	if len(p.IncludePatterns()) != len(p.Products.IncludePatterns) {
		t.Fatalf("include patterns were not compiled")
	}
	if p.RangePattern() == nil {
		t.Fatalf("range pattern was not compiled")
	}
	if rule := p.Field(FieldActualPrice); rule.Attr != "content" {
		t.Fatalf("actual price attr = %q, want content", rule.Attr)
	}
}

func TestParseProfileErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			yaml:    "site_name: [",
			wantErr: "decode profile",
		},
		{
			name:    "missing title",
			yaml:    "items_per_page_param: n\npage_param: p\nproducts:\n  link_selectors: [a]\n  include_patterns: [x]\n",
			wantErr: "fields.title",
		},
		{
			name:    "bad include pattern",
			yaml:    "items_per_page_param: n\npage_param: p\nfields:\n  title:\n    selectors: [h1]\nproducts:\n  link_selectors: [a]\n  include_patterns: ['(']\n",
			wantErr: "include pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseProfile([]byte(tt.yaml)); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadProfileFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	content := "site_name: Demo\nitems_per_page_param: limit\npage_param: p\nfields:\n  title:\n    selectors: [h1]\nproducts:\n  link_selectors: [a.item]\n  include_patterns: ['/item/']\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if p.SiteName != "Demo" || p.ItemsPerPageParam != "limit" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestProfileTitleSuffixCompiledOnce(t *testing.T) {
	p, err := DefaultProfile()
	if err != nil {
		t.Fatalf("default profile: %v", err)
	}
	suffix := p.TitleSuffix()
	if suffix == nil {
		t.Fatalf("title suffix was not compiled")
	}
	if p.TitleSuffix() != suffix {
		t.Fatalf("title suffix recompiled between calls")
	}
	if !suffix.MatchString("Aqara Hub - jarvis 居家") {
		t.Fatalf("suffix %q does not match a case-insensitive site name", suffix)
	}

	p.SiteName = ""
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if p.TitleSuffix() != nil {
		t.Fatalf("expected no suffix without a site name")
	}
}
