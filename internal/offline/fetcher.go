package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/kilamate/kilamate/internal/provider/resilience"
)

// maxBodyBytes caps responses read into memory.
const maxBodyBytes = 8 << 20

// ErrBodyTooLarge is returned for responses above maxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// Fetcher performs a network request.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) (*Response, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// forwardedHeaders are copied from upstream responses.
var forwardedHeaders = []string{
	"Content-Type",
	"Cache-Control",
	"ETag",
	"Last-Modified",
}

// HTTPFetcher fetches over HTTP through a resilient client. Responses from
// Origin are typed basic, everything else cors.
type HTTPFetcher struct {
	client *resilience.Client
	origin string
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(client *resilience.Client, origin string) *HTTPFetcher {
	return &HTTPFetcher{client: client, origin: strings.TrimRight(origin, "/")}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", req.URL, err)
	}
	if len(body) > maxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	header := make(http.Header)
	for _, name := range forwardedHeaders {
		if v := resp.Header.Get(name); v != "" {
			header.Set(name, v)
		}
	}

	typ := TypeCORS
	if sameOrigin(req.URL, f.origin) {
		typ = TypeBasic
	}

	return &Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   body,
		Type:   typ,
	}, nil
}

// FSFetcher serves the app shell from a file system, the way the origin
// server would. "/" serves index.html; unknown paths are 404 responses,
// not errors.
type FSFetcher struct {
	fsys fs.FS
}

// NewFSFetcher creates an FSFetcher over fsys.
func NewFSFetcher(fsys fs.FS) *FSFetcher {
	return &FSFetcher{fsys: fsys}
}

// Fetch implements Fetcher.
func (f *FSFetcher) Fetch(_ context.Context, req Request) (*Response, error) {
	if req.Method != "" && req.Method != http.MethodGet && req.Method != http.MethodHead {
		return &Response{Status: http.StatusMethodNotAllowed, Type: TypeBasic}, nil
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", req.URL, err)
	}

	name := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	if name == "" {
		name = "index.html"
	}

	body, err := fs.ReadFile(f.fsys, name)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
		return &Response{
			Status: http.StatusNotFound,
			Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
			Body:   []byte("not found"),
			Type:   TypeBasic,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	header := make(http.Header)
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		header.Set("Content-Type", ct)
	} else {
		header.Set("Content-Type", http.DetectContentType(body))
	}

	return &Response{
		Status: http.StatusOK,
		Header: header,
		Body:   body,
		Type:   TypeBasic,
	}, nil
}

func sameOrigin(rawURL, origin string) bool {
	if origin == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	o, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, o.Scheme) && strings.EqualFold(u.Host, o.Host)
}
