// Package pyindex locates wheels in find-links directories and PEP 691 simple indexes.
package pyindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	// SimpleJSONMediaType is the PEP 691 JSON response type.
	SimpleJSONMediaType = "application/vnd.pypi.simple.v1+json"

	sourceFindLinks = "find-links"
	sourceIndex     = "index"

	maxRetries = 3
)

// Factory implements ports.IndexFactory.
type Factory struct {
	Client *http.Client
	Logger ports.Logger

	// Retry returns the policy applied to transport errors and 5xx responses.
	Retry func() backoff.BackOff
}

// NewFactory creates a Factory that issues requests through client.
func NewFactory(client *http.Client, logger ports.Logger) *Factory {
	if client == nil {
		client = http.DefaultClient
	}
	return &Factory{
		Client: client,
		Logger: logger,
		Retry: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
		},
	}
}

// Open returns an index over cfg.
func (f *Factory) Open(cfg domain.IndexConfig, root string) (ports.PackageIndex, error) {
	idx := &Index{client: f.Client, logger: f.Logger, retry: f.Retry}

	if cfg.URL != "" {
		u, err := url.Parse(strings.TrimSuffix(cfg.URL, "/") + "/")
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, zerr.With(zerr.With(domain.ErrInvalidConfig, "field", "index.url"), "value", cfg.URL)
		}
		idx.base = u
	}

	for _, dir := range cfg.FindLinks {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		idx.findLinks = append(idx.findLinks, dir)
	}
	return idx, nil
}

// Index implements ports.PackageIndex. Find-links directories are searched first;
// the remote index is only queried when none of them has the pin.
type Index struct {
	client    *http.Client
	logger    ports.Logger
	retry     func() backoff.BackOff
	base      *url.URL
	findLinks []string
}

// statusError is a non-success HTTP status.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}

// get issues a GET request, retrying transport errors and server errors.
// Any other non-200 status is returned as a *statusError without retry.
func (i *Index) get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	var resp *http.Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
		if err != nil {
			return backoff.Permanent(err)
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		r, err := i.client.Do(req)
		if err != nil {
			return err
		}
		if r.StatusCode == http.StatusOK {
			resp = r
			return nil
		}
		_ = r.Body.Close()
		if r.StatusCode >= http.StatusInternalServerError {
			return &statusError{code: r.StatusCode}
		}
		return backoff.Permanent(&statusError{code: r.StatusCode})
	}

	policy := backoff.BackOff(&backoff.StopBackOff{})
	if i.retry != nil {
		policy = i.retry()
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	return 0
}

// Find returns the wheels of name at exactly version.
func (i *Index) Find(ctx context.Context, name domain.InternedString, version domain.Version) ([]domain.Distribution, error) {
	local, err := i.findLocal(name, version)
	if err != nil {
		return nil, err
	}
	if len(local) > 0 || i.base == nil {
		return local, nil
	}
	return i.findRemote(ctx, name, version)
}

func (i *Index) findLocal(name domain.InternedString, version domain.Version) ([]domain.Distribution, error) {
	var out []domain.Distribution
	for _, dir := range i.findLinks {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			i.logger.Warn(fmt.Sprintf("find-links directory %s does not exist", dir))
			continue
		}
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrIndexRequestFailed.Error()), "find_links", dir)
		}
		for _, e := range entries {
			if e.IsDir() || !matches(e.Name(), name, version) {
				continue
			}
			out = append(out, domain.Distribution{
				Filename: e.Name(),
				URL:      filepath.Join(dir, e.Name()),
				Source:   sourceFindLinks,
			})
		}
	}
	return out, nil
}

// simplePage is the PEP 691 project page.
type simplePage struct {
	Files []simpleFile `json:"files"`
}

type simpleFile struct {
	Filename string            `json:"filename"`
	URL      string            `json:"url"`
	Hashes   map[string]string `json:"hashes"`
	Yanked   any               `json:"yanked"`
}

func (i *Index) findRemote(ctx context.Context, name domain.InternedString, version domain.Version) ([]domain.Distribution, error) {
	page := i.base.JoinPath(name.String())
	page.Path += "/"

	resp, err := i.get(ctx, page.String(), SimpleJSONMediaType)
	if statusOf(err) == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrIndexRequestFailed.Error()), "url", page.String())
	}
	defer func() { _ = resp.Body.Close() }()

	var body simplePage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrIndexParseFailed.Error()), "url", page.String())
	}

	var out []domain.Distribution
	for _, f := range body.Files {
		if !matches(f.Filename, name, version) {
			continue
		}
		if yanked(f.Yanked) {
			i.logger.Warn(fmt.Sprintf("%s is yanked on the index", f.Filename))
		}
		ref, err := url.Parse(f.URL)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrIndexParseFailed.Error()), "file_url", f.URL)
		}
		out = append(out, domain.Distribution{
			Filename: f.Filename,
			URL:      page.ResolveReference(ref).String(),
			Hashes:   hashList(f.Hashes),
			Source:   sourceIndex,
		})
	}
	return out, nil
}

// Fetch streams the distribution into w.
func (i *Index) Fetch(ctx context.Context, dist domain.Distribution, w io.Writer) error {
	if dist.Source == sourceFindLinks {
		// #nosec G304 -- path was listed from a configured find-links directory
		f, err := os.Open(dist.URL)
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrDistributionFetchFailed.Error()), "file", dist.Filename)
		}
		defer func() { _ = f.Close() }()
		if _, err := io.Copy(w, f); err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrDistributionFetchFailed.Error()), "file", dist.Filename)
		}
		return nil
	}

	resp, err := i.get(ctx, dist.URL, "")
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrDistributionFetchFailed.Error()), "url", dist.URL)
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrDistributionFetchFailed.Error()), "url", dist.URL)
	}
	return nil
}

// matches reports whether filename is a wheel of name at exactly version.
func matches(filename string, name domain.InternedString, version domain.Version) bool {
	w, err := domain.ParseWheelFilename(filename)
	if err != nil {
		return false
	}
	return w.Name == name && w.Version.Compare(version) == 0
}

func hashList(hashes map[string]string) []string {
	out := make([]string, 0, len(hashes))
	for algo, hex := range hashes {
		out = append(out, strings.ToLower(algo)+":"+strings.ToLower(hex))
	}
	slices.Sort(out)
	return out
}

// yanked interprets the PEP 691 yanked field, which is false or a reason string.
func yanked(v any) bool {
	switch y := v.(type) {
	case bool:
		return y
	case string:
		return true
	}
	return false
}
