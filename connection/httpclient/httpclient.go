/*
Package httpclient performs the single request/response cycle every tunneled exchange is
built from. Each call is one POST with the fixed RTMPT headers and timeouts; anything but
a 200 is an error. There is deliberately no retry logic here, callers decide what a failed
exchange means.
*/
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rtmpt.io/tunnel/v1/rtmptlib/logger"
)

const (
	ContentType = "application/x-fcs"
	UserAgent   = "Shockwave Flash"

	DefaultConnectTimeout = 5000 * time.Millisecond
	DefaultReadTimeout    = 5000 * time.Millisecond

	HttpScheme  = "http"
	HttpsScheme = "https"
)

// Doer is the piece of *http.Client we need. Inject one to control the underlying
// transport; the default is built from the connect and read timeouts.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Exchanger is implemented by HttpClient and by MockExchanger
type Exchanger interface {
	Exchange(ctx context.Context, path string, payload []byte) ([]byte, error)
}

type Options struct {
	Host    string
	Port    int
	Secured bool

	// Optional, see Doer
	Doer Doer

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// Sent on top of the fixed headers
	Headers http.Header
}

type HttpClient struct {
	logger *logger.Logger

	client      Doer
	baseUrl     *url.URL
	headers     http.Header
	readTimeout time.Duration
}

func New(logger *logger.Logger, options Options) (*HttpClient, error) {
	if options.Host == "" {
		return nil, fmt.Errorf("cannot build http client without a host")
	}

	if options.Port <= 0 || options.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", options.Port)
	}

	if options.ConnectTimeout <= 0 {
		options.ConnectTimeout = DefaultConnectTimeout
	}

	if options.ReadTimeout <= 0 {
		options.ReadTimeout = DefaultReadTimeout
	}

	scheme := HttpScheme
	if options.Secured {
		scheme = HttpsScheme
	}

	baseUrl := &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
	}

	headers := http.Header{}
	for key, values := range options.Headers {
		for _, value := range values {
			headers.Add(key, value)
		}
	}
	headers.Set("Content-Type", ContentType)
	headers.Set("User-Agent", UserAgent)
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Pragma", "no-cache")

	client := options.Doer
	if client == nil {
		client = defaultClient(options.ConnectTimeout, options.ReadTimeout)
	}

	return &HttpClient{
		logger:      logger,
		client:      client,
		baseUrl:     baseUrl,
		headers:     headers,
		readTimeout: options.ReadTimeout,
	}, nil
}

func defaultClient(connectTimeout time.Duration, readTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: connectTimeout,
	}

	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: readTimeout,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Url is the address an exchange on path is sent to
func (h *HttpClient) Url(path string) string {
	target := *h.baseUrl
	target.Path = "/" + strings.TrimLeft(path, "/")
	return target.String()
}

// Exchange POSTs payload to path and returns the full response body. A nil payload sends an
// empty body.
func (h *HttpClient) Exchange(ctx context.Context, path string, payload []byte) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Url(path), bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Path: path, Err: err}
	}
	request.Header = h.headers.Clone()
	request.ContentLength = int64(len(payload))

	response, err := h.client.Do(request)
	if err != nil {
		return nil, &TransportError{Path: path, Err: err}
	}
	defer response.Body.Close()

	body, err := h.readBody(ctx, response)
	if err != nil {
		return nil, &TransportError{Path: path, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	h.logger.Debugf("%s responded with %d (%d bytes)", path, response.StatusCode, len(body))

	if response.StatusCode != http.StatusOK {
		return nil, &StatusError{
			Path:       path,
			StatusCode: response.StatusCode,
			Status:     response.Status,
		}
	}

	return body, nil
}

// the response body has to arrive within the read timeout, measured from the headers
func (h *HttpClient) readBody(ctx context.Context, response *http.Response) ([]byte, error) {
	timer := time.AfterFunc(h.readTimeout, func() {
		response.Body.Close()
	})
	defer timer.Stop()

	body, err := io.ReadAll(response.Body)
	if err != nil && !timer.Stop() && ctx.Err() == nil {
		return body, fmt.Errorf("read timed out after %s: %w", h.readTimeout, err)
	}
	return body, err
}
