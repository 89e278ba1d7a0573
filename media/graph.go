package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"golang.org/x/time/rate"

	"github.com/mqy/wabiz/chatstore"
	"github.com/mqy/wabiz/metrics"
)

const (
	DefaultGraphURL     = "https://graph.facebook.com"
	DefaultGraphVersion = "v20.0"

	// Cloud API media objects are at most 100 MB.
	DefaultMaxBytes = 100 << 20
)

var errTooLarge = errors.New("media object exceeds size limit")

type GraphOptions struct {
	BaseURL     string
	Version     string
	AccessToken string
	HTTPClient  *http.Client
	// RPS limits Graph API requests, burst is twice the rate.
	RPS   float64
	Store BlobStore
	// MaxBytes bounds one media object, DefaultMaxBytes when not positive.
	MaxBytes int64
}

// GraphFetcher implements interface `Fetcher` with the two step Cloud API
// download: resolve media id to a short lived url, then fetch the bytes.
type GraphFetcher struct {
	baseURL    string
	version    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	store      BlobStore
	maxBytes   int64
}

func NewGraphFetcher(opts GraphOptions) *GraphFetcher {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultGraphURL
	}
	version := strings.Trim(strings.TrimSpace(opts.Version), "/")
	if version == "" {
		version = DefaultGraphVersion
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	limit := rate.Inf
	burst := 1
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
		burst = int(opts.RPS*2) + 1
	}
	return &GraphFetcher{
		baseURL:    baseURL,
		version:    version,
		token:      strings.TrimSpace(opts.AccessToken),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		store:      opts.Store,
		maxBytes:   maxBytes,
	}
}

type mediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

func (f *GraphFetcher) Fetch(ctx context.Context, req *Request) (*chatstore.MediaRef, error) {
	if req.MediaID == "" {
		return nil, fmt.Errorf("media id is required")
	}
	fileName := req.FileName
	if fileName == "" {
		fileName = FileName(req.Kind, req.MediaID, req.MimeType, "")
	}
	ref := &chatstore.MediaRef{
		MediaID:  req.MediaID,
		MimeType: req.MimeType,
		Path:     Path(fileName),
		Kind:     req.Kind,
	}

	if ok, err := f.store.Exists(ctx, ref.Path); err != nil {
		return nil, err
	} else if ok {
		metrics.MediaFetches.WithLabelValues("cached").Inc()
		return ref, nil
	}

	info, err := f.lookup(ctx, req.MediaID)
	if err != nil {
		metrics.MediaFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	if ref.MimeType == "" {
		ref.MimeType = info.MimeType
	}

	if err := f.download(ctx, info.URL, ref.Path); err != nil {
		metrics.MediaFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.MediaFetches.WithLabelValues("ok").Inc()
	glog.V(5).Infof("media %s stored at %s", req.MediaID, ref.Path)
	return ref, nil
}

func (f *GraphFetcher) lookup(ctx context.Context, mediaID string) (*mediaInfo, error) {
	resp, err := f.get(ctx, f.baseURL+"/"+f.version+"/"+mediaID)
	if err != nil {
		return nil, fmt.Errorf("lookup media %s: %w", mediaID, err)
	}
	defer resp.Body.Close()

	var info mediaInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode media %s: %w", mediaID, err)
	}
	if info.URL == "" {
		return nil, fmt.Errorf("media %s has no url", mediaID)
	}
	return &info, nil
}

func (f *GraphFetcher) download(ctx context.Context, url, path string) error {
	resp, err := f.get(ctx, url)
	if err != nil {
		return fmt.Errorf("download %s: %w", path, err)
	}
	defer resp.Body.Close()
	return f.store.Put(ctx, path, &limitedReader{r: resp.Body, n: f.maxBytes})
}

// limitedReader fails instead of truncating when r is longer than n bytes,
// so a partial object is never stored.
type limitedReader struct {
	r io.Reader
	n int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.n < 0 {
		return 0, errTooLarge
	}
	if int64(len(p)) > l.n+1 {
		p = p[:l.n+1]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	if l.n < 0 {
		return 0, errTooLarge
	}
	return n, err
}

// get issues an authorized GET, non 2xx responses are errors.
func (f *GraphFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("status=%d message=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
