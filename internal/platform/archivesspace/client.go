package archivesspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/accession"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SessionHeader carries the token issued by the login endpoint.
const SessionHeader = "X-ArchivesSpace-Session"

var (
	ErrRepositoryNotFound  = errors.New("repository not found")
	ErrEnumerationNotFound = errors.New("enumeration not found")
)

// StatusError is returned for any response other than 200 OK.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status code: %d %s", e.Method, e.Path, e.Code, strings.TrimSpace(e.Body))
}

type Config struct {
	BaseURL           string
	Username          string
	Password          string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client talks to the ArchivesSpace backend API. It holds one session for
// its whole lifetime; the session is created on the first request and is
// never refreshed.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	username   string
	password   string
	session    string
	limiter    *rate.Limiter
	log        *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: newAccessLogTransport(nil, logger)},
		baseURL:    base,
		username:   cfg.Username,
		password:   cfg.Password,
		limiter:    limiter,
		log:        logger,
	}, nil
}

// Login establishes the session if the client does not have one yet.
func (c *Client) Login(ctx context.Context) error {
	if c.session != "" {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	form := url.Values{"password": {c.password}}
	u := c.resolve("/users/"+url.PathEscape(c.username)+"/login", nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("login failed: %w", &StatusError{Method: http.MethodPost, Path: req.URL.Path, Code: resp.StatusCode, Body: string(body)})
	}

	var res struct {
		Session string `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("login failed: decode response: %w", err)
	}
	if res.Session == "" {
		return errors.New("login failed: no session in response")
	}
	c.session = res.Session
	c.log.Debug("backend session established", zap.String("username", c.username))
	return nil
}

// RepositoryURI looks a repository up by its code. The first search hit
// wins.
func (c *Client) RepositoryURI(ctx context.Context, code string) (string, error) {
	q := url.Values{
		"page": {"1"},
		"q":    {fmt.Sprintf("title='%s'", code)},
	}
	var res struct {
		Results []struct {
			ID  string `json:"id"`
			URI string `json:"uri"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/search/repositories", q, &res); err != nil {
		return "", fmt.Errorf("find repository %s: %w", code, err)
	}
	if len(res.Results) == 0 {
		return "", fmt.Errorf("%w: %s", ErrRepositoryNotFound, code)
	}
	first := res.Results[0]
	if first.ID != "" {
		return first.ID, nil
	}
	return first.URI, nil
}

func (c *Client) AccessionPage(ctx context.Context, repoURI string, page int) (*AccessionPage, error) {
	var res AccessionPage
	q := url.Values{"page": {strconv.Itoa(page)}}
	if err := c.get(ctx, repoURI+"/accessions", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) AccessionIDs(ctx context.Context, repoURI string) ([]int, error) {
	var ids []int
	if err := c.get(ctx, repoURI+"/accessions", url.Values{"all_ids": {"true"}}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) AccessionsByID(ctx context.Context, repoURI string, ids []int) ([]*accession.Accession, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	var res []*accession.Accession
	if err := c.get(ctx, repoURI+"/accessions", url.Values{"id_set": {strings.Join(parts, ",")}}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// SaveAccession posts the full record back to its own URI.
func (c *Client) SaveAccession(ctx context.Context, acc *accession.Accession) error {
	if acc.URI == "" {
		return errors.New("save accession: record has no uri")
	}
	body, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("save accession %s: %w", acc.URI, err)
	}
	if err := c.do(ctx, http.MethodPost, acc.URI, nil, body, nil); err != nil {
		return fmt.Errorf("save accession %s: %w", acc.URI, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, ref string) error {
	c.log.Debug("deleting", zap.String("ref", ref))
	if err := c.do(ctx, http.MethodDelete, ref, nil, nil, nil); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

func (c *Client) Event(ctx context.Context, ref string) (*Event, error) {
	var res Event
	if err := c.get(ctx, ref, nil, &res); err != nil {
		return nil, fmt.Errorf("get event %s: %w", ref, err)
	}
	return &res, nil
}

func (c *Client) Subject(ctx context.Context, ref string) (*Subject, error) {
	var res Subject
	if err := c.get(ctx, ref, nil, &res); err != nil {
		return nil, fmt.Errorf("get subject %s: %w", ref, err)
	}
	return &res, nil
}

func (c *Client) SubjectPage(ctx context.Context, page int) (*SubjectPage, error) {
	var res SubjectPage
	if err := c.get(ctx, "/subjects", url.Values{"page": {strconv.Itoa(page)}}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// EnumerationValues returns the values of the named controlled value list.
func (c *Client) EnumerationValues(ctx context.Context, name string) ([]string, error) {
	var res []Enumeration
	if err := c.get(ctx, "/config/enumerations", nil, &res); err != nil {
		return nil, fmt.Errorf("get enumerations: %w", err)
	}
	for _, e := range res {
		if e.Name == name {
			return e.Values, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEnumerationNotFound, name)
}

// CountLinkedRecords returns the number of indexed records that carry the
// given subject heading.
func (c *Client) CountLinkedRecords(ctx context.Context, subjectTitle string) (int, error) {
	filter, err := json.Marshal(map[string]string{"subjects": subjectTitle})
	if err != nil {
		return 0, err
	}
	q := url.Values{
		"page":          {"1"},
		"filter_term[]": {string(filter)},
	}
	var res struct {
		TotalHits int `json:"total_hits"`
	}
	if err := c.get(ctx, "/search", q, &res); err != nil {
		return 0, fmt.Errorf("search subject %q: %w", subjectTitle, err)
	}
	return res.TotalHits, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, target interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, target)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, target interface{}) error {
	if err := c.Login(ctx); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path, query), reader)
	if err != nil {
		return err
	}
	req.Header.Set(SessionHeader, c.session)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(msg)}
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
