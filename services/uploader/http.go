//go:build !(rp2040 || rp2350)

package uploader

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxBody = 4 << 10

// HTTPPoster posts plain-text readings with a bearer token.
type HTTPPoster struct {
	URL    string
	Client *http.Client
}

func NewHTTPPoster(url string, timeout time.Duration, insecureTLS bool) *HTTPPoster {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecureTLS}
	return &HTTPPoster{
		URL:    url,
		Client: &http.Client{Timeout: timeout, Transport: tr},
	}
}

func (p *HTTPPoster) Post(ctx context.Context, body, token string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, strings.NewReader(body))
	if err != nil {
		return CodeBegin, "", fmt.Errorf("%w: %w", errBegin, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := p.Client.Do(req)
	if err != nil {
		return Classify(err), "", err
	}
	defer resp.Body.Close()

	// A short body read still leaves the status as the outcome.
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return resp.StatusCode, string(b), nil
}
