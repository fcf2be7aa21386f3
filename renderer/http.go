package renderer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"xdao.co/oeuvre/registry"
)

// HTTPRenderer GETs <ref>/<id> and returns the trimmed response body.
type HTTPRenderer struct {
	Client *http.Client
}

func (h HTTPRenderer) Render(ctx context.Context, ref string, id uint64) (string, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimRight(ref, "/") + "/" + strconv.FormatUint(id, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, registry.MaxPayloadBytes+1))
	if err != nil {
		return "", err
	}
	if len(body) > registry.MaxPayloadBytes {
		return "", fmt.Errorf("GET %s: body exceeds %d bytes", url, registry.MaxPayloadBytes)
	}
	return strings.TrimSpace(string(body)), nil
}

// NewHTTPDirectory routes http:// and https:// delegates to h.
func NewHTTPDirectory(h HTTPRenderer) *Directory {
	d := NewDirectory()
	d.Register("http://", h)
	d.Register("https://", h)
	return d
}
