// Package hub talks to the Hugging Face Hub REST API: repository lookup and
// snapshot download of preconverted models.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public Hugging Face endpoint.
const DefaultBaseURL = "https://huggingface.co"

// tokenEnvVars are consulted in order by TokenFromEnv.
var tokenEnvVars = []string{"HF_TOKEN", "HUGGING_FACE_HUB_TOKEN", "HUGGINGFACEHUB_API_TOKEN"}

var logger = zerolog.Nop()

// SetLogger installs the logger used by this package.
func SetLogger(l zerolog.Logger) { logger = l }

// TokenFromEnv returns the first non-empty Hub token from the environment.
func TokenFromEnv() string {
	for _, key := range tokenEnvVars {
		if tok := strings.TrimSpace(os.Getenv(key)); tok != "" {
			return tok
		}
	}
	return ""
}

// Client is a minimal Hub API client.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	// Progress, if set, receives per-file byte counts during downloads.
	Progress func(file string, done, total int64)
}

// New constructs a Client. An empty baseURL selects DefaultBaseURL.
func New(baseURL, token string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 0},
	}
}

type sibling struct {
	RFilename string `json:"rfilename"`
	Size      int64  `json:"size"`
	LFS       struct {
		Size int64 `json:"size"`
	} `json:"lfs"`
}

type modelInfo struct {
	ID       string    `json:"id"`
	Siblings []sibling `json:"siblings"`
}

// File is one entry of a repository snapshot.
type File struct {
	Name string
	Size int64
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) apiURL(repo string) string {
	return c.BaseURL + "/api/models/" + escapeRepo(repo)
}

// escapeRepo escapes each path segment of "org/name".
func escapeRepo(repo string) string {
	parts := strings.Split(repo, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// RepoExists reports whether repo is visible to this client. Missing and
// unauthorized repositories both report false.
func (c *Client) RepoExists(ctx context.Context, repo string) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.apiURL(repo))
	if err != nil {
		return false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("hub api %s: %s", repo, resp.Status)
	}
}

// ListFiles returns the files of repo at the main revision. Sizes are only
// reported by the hub when blobs=true is requested.
func (c *Client) ListFiles(ctx context.Context, repo string) ([]File, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.apiURL(repo)+"?blobs=true")
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("hub api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var meta modelInfo
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode model info: %w", err)
	}
	files := make([]File, 0, len(meta.Siblings))
	for _, s := range meta.Siblings {
		if s.RFilename == "" {
			continue
		}
		size := s.Size
		if s.LFS.Size > 0 {
			size = s.LFS.Size
		}
		files = append(files, File{Name: s.RFilename, Size: size})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("repository %s has no files", repo)
	}
	return files, nil
}

// SnapshotDownload copies every file of repo into dir. Files already present
// with the expected size are skipped; partial downloads resume.
func (c *Client) SnapshotDownload(ctx context.Context, repo, dir string) error {
	files, err := c.ListFiles(ctx, repo)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}
	start := time.Now()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		dest, err := safeJoin(dir, f.Name)
		if err != nil {
			return err
		}
		fileURL := c.BaseURL + "/" + escapeRepo(repo) + "/resolve/main/" + escapeRepo(f.Name)
		if err := c.downloadFile(ctx, fileURL, dest, f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("download %s: %w", f.Name, err)
		}
	}
	logger.Info().Str("repo", repo).Int("files", len(files)).Dur("dur", time.Since(start)).Msg("snapshot downloaded")
	return nil
}

// safeJoin rejects repository file names escaping dir.
func safeJoin(dir, name string) (string, error) {
	clean := path.Clean("/" + name)
	if clean == "/" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (c *Client) downloadFile(ctx context.Context, fileURL, dest string, f File) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if st, err := os.Stat(dest); err == nil && f.Size > 0 && st.Size() == f.Size {
		logger.Debug().Str("file", f.Name).Msg("already present")
		return nil
	}

	tmp := dest + ".part"
	var existing int64
	if st, err := os.Stat(tmp); err == nil {
		existing = st.Size()
		if f.Size > 0 && existing == f.Size {
			return os.Rename(tmp, dest)
		}
		if f.Size > 0 && existing > f.Size {
			_ = os.Remove(tmp)
			existing = 0
		}
	}

	req, err := c.newRequest(ctx, http.MethodGet, fileURL)
	if err != nil {
		return err
	}
	if existing > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		// server ignored Range; start over
		existing = 0
		flags |= os.O_TRUNC
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	out, err := os.OpenFile(tmp, flags, 0o644)
	if err != nil {
		return err
	}
	total := f.Size
	if total <= 0 && resp.ContentLength > 0 {
		total = existing + resp.ContentLength
	}
	pw := &progressWriter{w: out, done: existing, total: total, file: f.Name, fn: c.Progress}
	if _, err := io.Copy(pw, resp.Body); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if f.Size > 0 && pw.done != f.Size {
		return fmt.Errorf("size mismatch: got %d want %d", pw.done, f.Size)
	}
	return os.Rename(tmp, dest)
}

type progressWriter struct {
	w     io.Writer
	done  int64
	total int64
	file  string
	fn    func(string, int64, int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	if p.fn != nil {
		p.fn(p.file, p.done, p.total)
	}
	return n, err
}
