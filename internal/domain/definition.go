// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"strings"
)

// Protocol identifies the delivery mechanism a source serves releases over.
type Protocol string

const (
	ProtocolTorrent   Protocol = "torrent"
	ProtocolUsenet    Protocol = "usenet"
	ProtocolStreaming Protocol = "streaming"
)

func (p Protocol) Valid() bool {
	switch p {
	case ProtocolTorrent, ProtocolUsenet, ProtocolStreaming:
		return true
	}
	return false
}

// AccessTier describes how open a source is to new users.
type AccessTier string

const (
	AccessPublic      AccessTier = "public"
	AccessSemiPrivate AccessTier = "semi-private"
	AccessPrivate     AccessTier = "private"
)

func (a AccessTier) Valid() bool {
	switch a {
	case AccessPublic, AccessSemiPrivate, AccessPrivate:
		return true
	}
	return false
}

// RequiresLogin reports whether instances of this tier must authenticate
// before searching.
func (a AccessTier) RequiresLogin() bool {
	return a == AccessSemiPrivate || a == AccessPrivate
}

// AuthMethod is the login mechanism declared by a definition.
type AuthMethod string

const (
	AuthMethodNone   AuthMethod = "none"
	AuthMethodForm   AuthMethod = "form"
	AuthMethodCookie AuthMethod = "cookie"
	AuthMethodAPIKey AuthMethod = "apikey"
)

func (m AuthMethod) Valid() bool {
	switch m {
	case AuthMethodNone, AuthMethodForm, AuthMethodCookie, AuthMethodAPIKey:
		return true
	}
	return false
}

// SearchMode is one logical query shape a source can serve.
type SearchMode string

const (
	SearchModeGeneral SearchMode = "search"
	SearchModeMovie   SearchMode = "movie-search"
	SearchModeTV      SearchMode = "tv-search"
)

func (m SearchMode) Valid() bool {
	switch m {
	case SearchModeGeneral, SearchModeMovie, SearchModeTV:
		return true
	}
	return false
}

// ResponseType tells the selector engine how to parse a search response body.
type ResponseType string

const (
	ResponseTypeHTML ResponseType = "html"
	ResponseTypeXML  ResponseType = "xml"
	ResponseTypeJSON ResponseType = "json"
)

// SettingsField is one typed configuration input a definition asks the user
// to fill in (API key, cookie, site passkey).
type SettingsField struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"` // text, password, checkbox, select
	Label    string `yaml:"label" json:"label"`
	Default  string `yaml:"default,omitempty" json:"default,omitempty"`
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

// Capabilities declares what a source can answer.
type Capabilities struct {
	SearchModes     []SearchMode `yaml:"modes" json:"modes"`
	SupportsInfoURL bool         `yaml:"infourl,omitempty" json:"infourl,omitempty"`
	SupportsPaging  bool         `yaml:"paging,omitempty" json:"paging,omitempty"`
	SupportsHash    bool         `yaml:"infohash,omitempty" json:"infohash,omitempty"`
	ResultLimit     int          `yaml:"limit,omitempty" json:"limit,omitempty"`
}

// SupportsMode reports whether the definition declared support for the mode.
// An empty mode list means general search only.
func (c Capabilities) SupportsMode(mode SearchMode) bool {
	if len(c.SearchModes) == 0 {
		return mode == SearchModeGeneral
	}
	for _, m := range c.SearchModes {
		if m == mode {
			return true
		}
	}
	return false
}

// LoginRule describes how to establish a session against a source.
type LoginRule struct {
	Method AuthMethod        `yaml:"method" json:"method"`
	Path   string            `yaml:"path,omitempty" json:"path,omitempty"`
	Inputs map[string]string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	// ErrorSelector matches a failure marker in the login response body.
	ErrorSelector string `yaml:"error_selector,omitempty" json:"errorSelector,omitempty"`
	// TestPath is fetched after login to verify the session took.
	TestPath string `yaml:"test_path,omitempty" json:"testPath,omitempty"`
}

// SearchRule describes how to build the request for one search mode.
type SearchRule struct {
	Mode        SearchMode        `yaml:"mode" json:"mode"`
	Path        string            `yaml:"path" json:"path"`
	Method      string            `yaml:"method,omitempty" json:"method,omitempty"` // GET (default) or POST
	Params      map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
	Body        string            `yaml:"body,omitempty" json:"body,omitempty"`
	ContentType string            `yaml:"content_type,omitempty" json:"contentType,omitempty"`
}

// FieldSelector extracts one output field relative to a result row.
type FieldSelector struct {
	Selector  string   `yaml:"selector,omitempty" json:"selector,omitempty"`
	Attribute string   `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	Pattern   string   `yaml:"pattern,omitempty" json:"pattern,omitempty"` // regex applied to the extracted text
	Filters   []Filter `yaml:"filters,omitempty" json:"filters,omitempty"`
	Text      string   `yaml:"text,omitempty" json:"text,omitempty"` // static value, template-expanded
	Optional  bool     `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// Filter is one named transform in a field's filter chain.
type Filter struct {
	Name string   `yaml:"name" json:"name"`
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`
}

// ParseRule describes how to extract release rows and fields from a response.
type ParseRule struct {
	Type   ResponseType             `yaml:"type" json:"type"`
	Rows   string                   `yaml:"rows" json:"rows"`
	Fields map[string]FieldSelector `yaml:"fields" json:"fields"`
}

// Release field names recognized by the parse rule. Title and at least one
// of download/magnet/infohash are required for a row to produce a release.
const (
	FieldTitle       = "title"
	FieldDownload    = "download"
	FieldMagnet      = "magnet"
	FieldInfoHash    = "infohash"
	FieldDetails     = "details"
	FieldSize        = "size"
	FieldSeeders     = "seeders"
	FieldLeechers    = "leechers"
	FieldGrabs       = "grabs"
	FieldPublishDate = "date"
	FieldCategory    = "category"
)

// SourceDefinition is the immutable, declarative integration contract for one
// indexing site. Loaded once, read-only afterwards.
type SourceDefinition struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Protocol    Protocol   `yaml:"protocol" json:"protocol"`
	Access      AccessTier `yaml:"access" json:"access"`
	Language    string     `yaml:"language,omitempty" json:"language,omitempty"`

	BaseURLs []string `yaml:"urls" json:"urls"`

	Settings     []SettingsField `yaml:"settings,omitempty" json:"settings,omitempty"`
	Capabilities Capabilities    `yaml:"caps" json:"caps"`

	// CategoryMap translates the site's own category labels/ids into
	// canonical category ids.
	CategoryMap map[string][]int `yaml:"categorymap,omitempty" json:"categoryMap,omitempty"`

	Login  *LoginRule   `yaml:"login,omitempty" json:"login,omitempty"`
	Search []SearchRule `yaml:"search" json:"search"`
	Parse  ParseRule    `yaml:"parse" json:"parse"`

	// Extra preserves unknown top-level document keys so community
	// definitions survive a load/serialize round trip untouched.
	Extra map[string]any `yaml:"-" json:"-"`
}

// SearchRuleFor returns the search rule matching the mode, falling back to
// the general rule when the definition declares one.
func (d *SourceDefinition) SearchRuleFor(mode SearchMode) (SearchRule, bool) {
	var general SearchRule
	var hasGeneral bool
	for _, rule := range d.Search {
		if rule.Mode == mode {
			return rule, true
		}
		if rule.Mode == SearchModeGeneral || rule.Mode == "" {
			general = rule
			hasGeneral = true
		}
	}
	return general, hasGeneral
}

// PrimaryURL returns the first configured base URL.
func (d *SourceDefinition) PrimaryURL() string {
	if len(d.BaseURLs) == 0 {
		return ""
	}
	return strings.TrimRight(d.BaseURLs[0], "/")
}

// AuthMethod returns the declared login method, or none.
func (d *SourceDefinition) AuthMethod() AuthMethod {
	if d.Login == nil {
		return AuthMethodNone
	}
	return d.Login.Method
}

// Provenance records where a registered definition came from.
type Provenance string

const (
	ProvenanceNative  Provenance = "native"
	ProvenanceYAML    Provenance = "yaml"
	ProvenanceBuiltin Provenance = "builtin"
	ProvenanceUser    Provenance = "user"
)

func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceNative, ProvenanceYAML, ProvenanceBuiltin, ProvenanceUser:
		return true
	}
	return false
}
