package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// CheckSource verifies that the remote gallery service answers its routing
// endpoint.
func CheckSource(ctx context.Context, client *http.Client, baseURL, userAgent string) Result {
	const name = "Source"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/routing.json", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%v)", err)}
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("routing check failed (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSameFilesystem reports whether staging and archive share a device.
// Commits across devices fall back to a verified copy, so a mismatch is
// advisory.
func CheckSameFilesystem(stagingDir, archiveDir string) Result {
	const name = "Atomic commit"

	var staging, archive unix.Stat_t
	if err := unix.Stat(stagingDir, &staging); err != nil {
		return Result{Name: name, Advisory: true, Detail: fmt.Sprintf("stat %s: %v", stagingDir, err)}
	}
	if err := unix.Stat(archiveDir, &archive); err != nil {
		return Result{Name: name, Advisory: true, Detail: fmt.Sprintf("stat %s: %v", archiveDir, err)}
	}
	if staging.Dev != archive.Dev {
		return Result{Name: name, Advisory: true, Detail: "staging and archive are on different filesystems (commits copy instead of link)"}
	}
	return Result{Name: name, Passed: true, Advisory: true, Detail: "staging and archive share a filesystem"}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "routing check timed out (source unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "routing check timed out (source unreachable)"
	}
	return err.Error()
}
