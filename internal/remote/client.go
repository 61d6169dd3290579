package remote

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tsukumogami/hako/internal/config"
	"github.com/tsukumogami/hako/internal/manifest"
	"github.com/tsukumogami/hako/internal/pkginfo"
	"github.com/tsukumogami/hako/internal/ref"
)

// maxResponseSize bounds metadata responses. Package archives stream
// through the unpacker and are bounded per entry instead.
const maxResponseSize = 50 * 1024 * 1024

// HTTPClient implements Client over the remote REST API:
//
//	GET /v1/recipes/{name}/{version}/{user}/{channel}/recipe.toml
//	GET /v1/recipes/.../manifest
//	GET /v1/recipes/.../packages/{package_id}/manifest
//	GET /v1/recipes/.../packages/{package_id}/info
//	GET /v1/recipes/.../packages/{package_id}/archive
//	PUT /v1/recipes/.../packages/{package_id}/files/{path}
//
// Recipe responses carry the recipe revision in an X-Hako-Revision
// header; package manifest and info responses carry the package
// revision in an X-Hako-Package-Revision header.
type HTTPClient struct {
	client         *http.Client
	insecureClient *http.Client
}

// newTransport builds the hardened transport: compression disabled so
// response sizes stay honest, and conservative timeouts everywhere.
func newTransport(insecure bool) *http.Transport {
	t := &http.Transport{
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return t
}

// NewHTTPClient returns a client honoring the configured API timeout.
func NewHTTPClient() *HTTPClient {
	timeout := config.GetAPITimeout()
	return &HTTPClient{
		client:         &http.Client{Timeout: timeout, Transport: newTransport(false)},
		insecureClient: &http.Client{Timeout: timeout, Transport: newTransport(true)},
	}
}

func (c *HTTPClient) httpFor(remote *Remote) *http.Client {
	if remote.VerifySSL {
		return c.client
	}
	return c.insecureClient
}

func refPath(r ref.Reference) string {
	user, channel := r.User, r.Channel
	if user == "" {
		user = "_"
	}
	if channel == "" {
		channel = "_"
	}
	return fmt.Sprintf("v1/recipes/%s/%s/%s/%s",
		url.PathEscape(r.Name), url.PathEscape(r.Version),
		url.PathEscape(user), url.PathEscape(channel))
}

func (c *HTTPClient) get(remote *Remote, path, what string) ([]byte, http.Header, error) {
	u := strings.TrimSuffix(remote.URL, "/") + "/" + path
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, &Error{Type: ErrTypeNetwork, Remote: remote.Name,
			Message: "failed to create request", Err: err}
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := c.httpFor(remote).Do(req)
	if err != nil {
		return nil, nil, &Error{Type: ErrTypeNetwork, Remote: remote.Name,
			Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil, &NotFoundError{What: what, Remote: remote.Name}
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, nil, &Error{Type: ErrTypeAuth, Remote: remote.Name,
			Message: fmt.Sprintf("access denied for %s", what)}
	case http.StatusTooManyRequests:
		return nil, nil, &Error{Type: ErrTypeRateLimit, Remote: remote.Name,
			Message: "rate limit exceeded"}
	default:
		return nil, nil, &Error{Type: ErrTypeNetwork, Remote: remote.Name,
			Message: fmt.Sprintf("unexpected status %d for %s", resp.StatusCode, what)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, &Error{Type: ErrTypeNetwork, Remote: remote.Name,
			Message: "failed to read response", Err: err}
	}
	return data, resp.Header, nil
}

// GetRecipe fetches the recipe file. The resolved reference carries
// the revision the remote serves.
func (c *HTTPClient) GetRecipe(r ref.Reference, remote *Remote) ([]byte, ref.Reference, error) {
	data, headers, err := c.get(remote, refPath(r)+"/recipe.toml", "recipe "+r.String())
	if err != nil {
		return nil, ref.Reference{}, err
	}
	resolved := r
	if rev := headers.Get("X-Hako-Revision"); rev != "" {
		resolved.Revision = rev
	}
	return data, resolved, nil
}

// GetRecipeManifest fetches the recipe manifest.
func (c *HTTPClient) GetRecipeManifest(r ref.Reference, remote *Remote) (*manifest.Manifest, error) {
	data, _, err := c.get(remote, refPath(r)+"/manifest", "recipe manifest "+r.String())
	if err != nil {
		return nil, err
	}
	m, err := manifest.Parse(string(data))
	if err != nil {
		return nil, &Error{Type: ErrTypeParsing, Remote: remote.Name,
			Message: "unreadable recipe manifest", Err: err}
	}
	return m, nil
}

// GetPackageManifest fetches a binary's manifest.
func (c *HTTPClient) GetPackageManifest(pref ref.PackageReference, remote *Remote) (*manifest.Manifest, ref.PackageReference, error) {
	path := fmt.Sprintf("%s/packages/%s/manifest", refPath(pref.Ref), url.PathEscape(pref.PackageID))
	data, headers, err := c.get(remote, path, "package "+pref.String())
	if err != nil {
		return nil, ref.PackageReference{}, err
	}
	m, err := manifest.Parse(string(data))
	if err != nil {
		return nil, ref.PackageReference{}, &Error{Type: ErrTypeParsing, Remote: remote.Name,
			Message: "unreadable package manifest", Err: err}
	}
	resolved := pref
	if prev := headers.Get("X-Hako-Package-Revision"); prev != "" {
		resolved.Revision = prev
	}
	return m, resolved, nil
}

// GetPackageInfo fetches a binary's package info text.
func (c *HTTPClient) GetPackageInfo(pref ref.PackageReference, remote *Remote) (*pkginfo.Info, ref.PackageReference, error) {
	path := fmt.Sprintf("%s/packages/%s/info", refPath(pref.Ref), url.PathEscape(pref.PackageID))
	data, headers, err := c.get(remote, path, "package "+pref.String())
	if err != nil {
		return nil, ref.PackageReference{}, err
	}
	info, err := pkginfo.Loads(string(data))
	if err != nil {
		return nil, ref.PackageReference{}, &Error{Type: ErrTypeParsing, Remote: remote.Name,
			Message: "unreadable package info", Err: err}
	}
	resolved := pref
	if prev := headers.Get("X-Hako-Package-Revision"); prev != "" {
		resolved.Revision = prev
	}
	return info, resolved, nil
}

// SearchRecipes lists the references a remote serves for a package
// name. The response is one reference per line.
func (c *HTTPClient) SearchRecipes(name string, remote *Remote) ([]ref.Reference, error) {
	data, _, err := c.get(remote, "v1/search/"+url.PathEscape(name), "recipes named "+name)
	if err != nil {
		return nil, err
	}
	var out []ref.Reference
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r, err := ref.Parse(line)
		if err != nil {
			return nil, &Error{Type: ErrTypeParsing, Remote: remote.Name,
				Message: "unreadable search result", Err: err}
		}
		out = append(out, r)
	}
	return out, nil
}

// DownloadPackage fetches the binary archive and unpacks it into
// destDir. The archive may be gzip or xz compressed.
func (c *HTTPClient) DownloadPackage(pref ref.PackageReference, remote *Remote, destDir string) error {
	path := fmt.Sprintf("%s/packages/%s/archive", refPath(pref.Ref), url.PathEscape(pref.PackageID))
	data, _, err := c.get(remote, path, "package archive "+pref.String())
	if err != nil {
		return err
	}
	if err := Unpack(bytes.NewReader(data), destDir); err != nil {
		return &Error{Type: ErrTypeParsing, Remote: remote.Name,
			Message: "failed to unpack package archive", Err: err}
	}
	return nil
}

// UploadPackage uploads a binary as a files map of archive path →
// local file path.
func (c *HTTPClient) UploadPackage(pref ref.PackageReference, remote *Remote, files map[string]string) error {
	for archivePath, localPath := range files {
		data, err := os.ReadFile(localPath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", localPath, err)
		}
		path := fmt.Sprintf("%s/packages/%s/files/%s",
			refPath(pref.Ref), url.PathEscape(pref.PackageID), archivePath)
		u := strings.TrimSuffix(remote.URL, "/") + "/" + path
		req, err := http.NewRequest(http.MethodPut, u, bytes.NewReader(data))
		if err != nil {
			return &Error{Type: ErrTypeNetwork, Remote: remote.Name,
				Message: "failed to create upload request", Err: err}
		}
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := c.httpFor(remote).Do(req)
		if err != nil {
			return &Error{Type: ErrTypeNetwork, Remote: remote.Name,
				Message: "upload failed", Err: err}
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return &Error{Type: ErrTypeNetwork, Remote: remote.Name,
				Message: fmt.Sprintf("upload of %s returned status %d", archivePath, resp.StatusCode)}
		}
	}
	return nil
}
