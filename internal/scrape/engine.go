// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/scour/internal/categories"
	"github.com/autobrr/scour/internal/domain"
)

// Engine interprets definitions against live HTTP responses. One client
// (and therefore one cookie session) is kept per instance id.
type Engine struct {
	mu       sync.Mutex
	sessions map[int]*session
}

// session is shared by every concurrent search against one instance. Login
// state is guarded by mu so parallel rounds neither race on loggedIn nor
// double-submit the login form.
type session struct {
	client *Client

	mu       sync.Mutex
	loggedIn bool
}

func (s *session) invalidate() {
	s.mu.Lock()
	s.loggedIn = false
	s.mu.Unlock()
}

// NewEngine builds an engine with no active sessions.
func NewEngine() *Engine {
	return &Engine{
		sessions: make(map[int]*session),
	}
}

func (e *Engine) session(instance *domain.SourceInstance) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.sessions[instance.ID]; ok {
		return s, nil
	}

	client, err := NewClient(instance.Timeout())
	if err != nil {
		return nil, err
	}
	s := &session{client: client}
	e.sessions[instance.ID] = s
	return s, nil
}

// InvalidateSession drops an instance's cached session so the next search
// logs in fresh. Called when instance settings change.
func (e *Engine) InvalidateSession(instanceID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, instanceID)
}

// Search runs one instance's search: login if the access tier requires it
// and no session is cached, build the request for the criteria's mode, fetch,
// and extract releases. Zero rows is a valid empty result.
func (e *Engine) Search(ctx context.Context, def *domain.SourceDefinition, instance *domain.SourceInstance, criteria domain.SearchCriteria) ([]domain.Release, error) {
	rule, ok := def.SearchRuleFor(criteria.Mode)
	if !ok {
		return nil, fmt.Errorf("definition %s has no search rule for mode %s", def.ID, criteria.Mode)
	}

	baseURL := instance.ResolvedBaseURL(def)
	if baseURL == "" {
		return nil, fmt.Errorf("instance %d has no base URL", instance.ID)
	}

	sess, err := e.session(instance)
	if err != nil {
		return nil, err
	}

	if err := e.ensureLogin(ctx, def, instance, sess, baseURL); err != nil {
		return nil, err
	}

	tmplCtx := NewTemplateContext(def, instance, criteria)

	body, status, err := e.issueSearch(ctx, sess, rule, tmplCtx, baseURL)
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			sess.invalidate()
			return nil, &AuthError{Reason: fmt.Sprintf("search rejected with status %d", status)}
		}
		return nil, err
	}

	rows, err := Rows(def.Parse, body)
	if err != nil {
		return nil, err
	}

	releases := make([]domain.Release, 0, len(rows))
	for _, row := range rows {
		release, ok := e.buildRelease(def, instance, row, tmplCtx, baseURL)
		if !ok {
			continue
		}
		releases = append(releases, release)
	}

	limit := def.Capabilities.ResultLimit
	if criteria.Limit > 0 && (limit == 0 || criteria.Limit < limit) {
		limit = criteria.Limit
	}
	if limit > 0 && len(releases) > limit {
		releases = releases[:limit]
	}

	log.Debug().
		Int("instance_id", instance.ID).
		Str("definition", def.ID).
		Int("rows", len(rows)).
		Int("releases", len(releases)).
		Msg("Search completed")

	return releases, nil
}

// Test validates an instance's configuration by logging in and running a
// trivial search. Results are discarded; only errors matter.
func (e *Engine) Test(ctx context.Context, def *domain.SourceDefinition, instance *domain.SourceInstance) error {
	criteria := domain.SearchCriteria{
		Mode:  domain.SearchModeGeneral,
		Query: "test",
		Limit: 1,
	}
	_, err := e.Search(ctx, def, instance, criteria)
	return err
}

// ensureLogin holds the session lock for the whole login sequence so only
// one of several concurrent searches performs it; the rest reuse the result.
func (e *Engine) ensureLogin(ctx context.Context, def *domain.SourceDefinition, instance *domain.SourceInstance, sess *session, baseURL string) error {
	if def.Login == nil || def.Login.Method == domain.AuthMethodNone {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.loggedIn {
		return nil
	}

	tmplCtx := NewTemplateContext(def, instance, domain.SearchCriteria{})

	switch def.Login.Method {
	case domain.AuthMethodForm:
		if err := e.formLogin(ctx, def, sess, tmplCtx, baseURL); err != nil {
			return err
		}

	case domain.AuthMethodCookie:
		raw := instance.Setting(def, "cookie")
		if strings.TrimSpace(raw) == "" {
			return &AuthError{Reason: "cookie setting is empty"}
		}
		base, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("invalid base URL %q: %w", baseURL, err)
		}
		sess.client.SetCookies(base, raw)

	case domain.AuthMethodAPIKey:
		if instance.Setting(def, "apikey") == "" {
			return &AuthError{Reason: "apikey setting is empty"}
		}

	default:
		return fmt.Errorf("unsupported auth method %q", def.Login.Method)
	}

	if def.Login.TestPath != "" {
		if err := e.verifySession(ctx, def, sess, baseURL); err != nil {
			return err
		}
	}

	sess.loggedIn = true
	log.Debug().Str("definition", def.ID).Msg("Session established")
	return nil
}

func (e *Engine) formLogin(ctx context.Context, def *domain.SourceDefinition, sess *session, tmplCtx TemplateContext, baseURL string) error {
	values := url.Values{}
	for name, raw := range def.Login.Inputs {
		values.Set(name, tmplCtx.Resolve(raw))
	}

	loginURL := joinURL(baseURL, def.Login.Path)
	body, status, err := sess.client.PostForm(ctx, loginURL, values)
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return &AuthError{Reason: fmt.Sprintf("login rejected with status %d", status)}
		}
		return err
	}

	if marker := def.Login.ErrorSelector; marker != "" {
		if matched, text := selectorMatches(body, marker); matched {
			return &AuthError{Reason: text}
		}
	}
	return nil
}

func (e *Engine) verifySession(ctx context.Context, def *domain.SourceDefinition, sess *session, baseURL string) error {
	body, status, err := sess.client.Get(ctx, joinURL(baseURL, def.Login.TestPath))
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return &AuthError{Reason: fmt.Sprintf("session test rejected with status %d", status)}
		}
		return err
	}
	if marker := def.Login.ErrorSelector; marker != "" {
		if matched, text := selectorMatches(body, marker); matched {
			return &AuthError{Reason: text}
		}
	}
	return nil
}

// selectorMatches reports whether a CSS failure marker matches the body and
// returns the matched text for diagnostics.
func selectorMatches(body, selector string) (bool, string) {
	rows, err := Rows(domain.ParseRule{Type: domain.ResponseTypeHTML, Rows: selector}, body)
	if err != nil || len(rows) == 0 {
		return false, ""
	}
	text, _, _ := rows[0].Field(domain.FieldSelector{})
	if text == "" {
		text = "login failure marker matched"
	}
	return true, text
}

func (e *Engine) issueSearch(ctx context.Context, sess *session, rule domain.SearchRule, tmplCtx TemplateContext, baseURL string) (string, int, error) {
	searchURL := joinURL(baseURL, tmplCtx.Resolve(rule.Path))

	method := strings.ToUpper(rule.Method)
	if method == "" {
		method = http.MethodGet
	}

	switch method {
	case http.MethodGet:
		if len(rule.Params) > 0 {
			values := url.Values{}
			for name, raw := range rule.Params {
				values.Set(name, tmplCtx.Resolve(raw))
			}
			sep := "?"
			if strings.Contains(searchURL, "?") {
				sep = "&"
			}
			searchURL += sep + values.Encode()
		}
		return sess.client.Get(ctx, searchURL)

	case http.MethodPost:
		if rule.Body != "" {
			contentType := rule.ContentType
			if contentType == "" {
				contentType = "application/json"
			}
			return sess.client.Post(ctx, searchURL, contentType, tmplCtx.Resolve(rule.Body))
		}
		values := url.Values{}
		for name, raw := range rule.Params {
			values.Set(name, tmplCtx.Resolve(raw))
		}
		return sess.client.PostForm(ctx, searchURL, values)

	default:
		return "", 0, fmt.Errorf("unsupported search method %q", rule.Method)
	}
}

// buildRelease extracts every declared field from one row. A row missing a
// required field is dropped and logged, never fatal.
func (e *Engine) buildRelease(def *domain.SourceDefinition, instance *domain.SourceInstance, row Row, tmplCtx TemplateContext, baseURL string) (domain.Release, bool) {
	values := make(map[string]string, len(def.Parse.Fields))

	for name, sel := range def.Parse.Fields {
		raw, ok, err := e.extractField(row, sel, tmplCtx)
		if err != nil || !ok {
			if !sel.Optional && isRequiredField(name) {
				log.Debug().
					Err(err).
					Str("definition", def.ID).
					Str("field", name).
					Msg("Dropping row with unmatched required field")
				return domain.Release{}, false
			}
			continue
		}
		values[name] = raw
	}

	release := domain.Release{
		Title:     strings.TrimSpace(values[domain.FieldTitle]),
		Protocol:  def.Protocol,
		SourceIDs: []int{instance.ID},
	}
	if release.Title == "" {
		return domain.Release{}, false
	}

	release.DownloadURL = resolveURL(baseURL, values[domain.FieldDownload])
	release.InfoURL = resolveURL(baseURL, values[domain.FieldDetails])
	release.MagnetURI = values[domain.FieldMagnet]
	release.InfoHash = strings.ToLower(strings.TrimSpace(values[domain.FieldInfoHash]))

	if !release.HasDownloadRef() {
		log.Debug().
			Str("definition", def.ID).
			Str("title", release.Title).
			Msg("Dropping row without download reference")
		return domain.Release{}, false
	}

	if raw, ok := values[domain.FieldSize]; ok {
		if n, err := parseSize(raw); err == nil {
			release.Size = n
		}
	}
	release.Seeders = parseIntField(values[domain.FieldSeeders])
	release.Leechers = parseIntField(values[domain.FieldLeechers])
	release.Grabs = parseIntField(values[domain.FieldGrabs])

	if raw, ok := values[domain.FieldPublishDate]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			release.PublishDate = t
		} else if t, err := parseDate(raw, ""); err == nil {
			release.PublishDate = t
		}
	}

	if raw, ok := values[domain.FieldCategory]; ok {
		release.Categories = categories.MapSourceCategory(def, raw)
	}

	return release, true
}

func (e *Engine) extractField(row Row, sel domain.FieldSelector, tmplCtx TemplateContext) (string, bool, error) {
	var raw string
	if sel.Text != "" {
		raw = tmplCtx.Resolve(sel.Text)
	} else {
		var ok bool
		var err error
		raw, ok, err = row.Field(sel)
		if err != nil || !ok {
			return "", false, err
		}
	}

	if len(sel.Filters) > 0 {
		filtered, err := ApplyFilters(raw, sel.Filters)
		if err != nil {
			return "", false, err
		}
		raw = filtered
	}
	return raw, true, nil
}

// isRequiredField: title always; the download reference trio is checked
// collectively after extraction, so individual members are soft here.
func isRequiredField(name string) bool {
	return name == domain.FieldTitle
}

func parseIntField(raw string) int {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "magnet:") {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
