package fetch

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tankobon/internal/config"
	"tankobon/internal/logging"
	"tankobon/internal/services"
	"tankobon/internal/source"
)

// entryTime is stamped on every zip entry so output depends only on content.
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// HTTPDoer describes the HTTP client used for fragment downloads.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads fragments.
type Fetcher struct {
	client      HTTPDoer
	concurrency int
	timeout     time.Duration
	retries     int
	retryDelay  time.Duration
	userAgent   string
	referer     string
	logger      *slog.Logger
}

// New constructs a fetcher from configuration. A nil client selects
// http.DefaultClient; per-fragment deadlines come from fetch.fragment_timeout.
func New(cfg *config.Config, client HTTPDoer, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	concurrency := cfg.Fetch.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Fetcher{
		client:      client,
		concurrency: concurrency,
		timeout:     cfg.FragmentTimeout(),
		retries:     cfg.Fetch.FragmentRetries,
		retryDelay:  cfg.RetryDelay(),
		userAgent:   cfg.Source.UserAgent,
		referer:     cfg.Source.Referer,
		logger:      logging.NewComponentLogger(logger, "fetch"),
	}
}

// Fetch downloads every fragment from urls (keyed by fragment name) and
// writes a zip container to dst with one entry per fragment in declared
// order. onFragment, when non-nil, is called once per completed fragment;
// calls never overlap. The first failure cancels outstanding downloads and is
// returned; dst then holds an incomplete container the caller must discard.
func (f *Fetcher) Fetch(ctx context.Context, fragments []source.Fragment, urls map[string]string, dst io.Writer, onFragment func(source.Fragment)) error {
	for _, frag := range fragments {
		if strings.TrimSpace(urls[frag.Name]) == "" {
			return services.Wrap(services.ErrFetch, "Fetching", "plan", fmt.Sprintf("no url for fragment %q", frag.Name), nil)
		}
	}

	asm := newAssembler(zip.NewWriter(dst), fragments, onFragment)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.concurrency)

	for i, frag := range fragments {
		if groupCtx.Err() != nil {
			break
		}
		i, frag := i, frag
		group.Go(func() error {
			data, err := f.fetchWithRetry(groupCtx, frag, urls[frag.Name])
			if err != nil {
				return err
			}
			return asm.deliver(i, data)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrFetch, "Fetching", "download", "cancelled", err)
	}
	if err := asm.close(); err != nil {
		return services.Wrap(services.ErrFetch, "Fetching", "assemble", "finalize container", err)
	}
	return nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, frag source.Fragment, url string) ([]byte, error) {
	attempts := f.retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		data, err := f.fetchOne(ctx, frag, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if Permanent(err) || ctx.Err() != nil || attempt == attempts {
			break
		}
		logging.WarnWithContext(f.logger, "fragment download failed, retrying", "fetch_retry",
			logging.String("fragment", frag.Name),
			logging.Int("attempt", attempt),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "transient fault; check network or host availability"),
		)
		select {
		case <-time.After(f.retryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return nil, services.Wrap(services.ErrFetch, "Fetching", "download", frag.Name, ctx.Err())
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOne(ctx context.Context, frag source.Fragment, url string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "Fetching", "build request", frag.Name, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "Fetching", "download", frag.Name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return nil, &UnavailableError{Fragment: frag.Name, URL: url, Status: resp.StatusCode}
	case resp.StatusCode >= http.StatusMultipleChoices:
		return nil, services.Wrap(services.ErrFetch, "Fetching", "download", fmt.Sprintf("%s returned %d", frag.Name, resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "Fetching", "read body", frag.Name, err)
	}
	f.logger.Debug("fragment downloaded",
		logging.String("fragment", frag.Name),
		logging.Int("bytes", len(data)),
	)
	return data, nil
}

// assembler writes completed fragments to the container in declared order.
type assembler struct {
	mu         sync.Mutex
	zw         *zip.Writer
	fragments  []source.Fragment
	onFragment func(source.Fragment)
	pending    map[int][]byte
	next       int
}

func newAssembler(zw *zip.Writer, fragments []source.Fragment, onFragment func(source.Fragment)) *assembler {
	return &assembler{
		zw:         zw,
		fragments:  fragments,
		onFragment: onFragment,
		pending:    make(map[int][]byte),
	}
}

func (a *assembler) deliver(index int, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending[index] = data
	if a.onFragment != nil {
		a.onFragment(a.fragments[index])
	}
	for {
		buf, ok := a.pending[a.next]
		if !ok {
			return nil
		}
		if err := a.writeEntry(a.next, buf); err != nil {
			return err
		}
		delete(a.pending, a.next)
		a.next++
	}
}

func (a *assembler) writeEntry(index int, data []byte) error {
	frag := a.fragments[index]
	w, err := a.zw.CreateHeader(&zip.FileHeader{
		Name:     EntryName(index, frag),
		Method:   zip.Store,
		Modified: entryTime,
	})
	if err != nil {
		return services.Wrap(services.ErrFetch, "Fetching", "assemble", frag.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		return services.Wrap(services.ErrFetch, "Fetching", "assemble", frag.Name, err)
	}
	return nil
}

func (a *assembler) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.next != len(a.fragments) {
		return errors.New("container incomplete")
	}
	return a.zw.Close()
}

// EntryName is the container entry name for the fragment at index.
func EntryName(index int, frag source.Fragment) string {
	return fmt.Sprintf("%04d%s", index+1, frag.Ext())
}
