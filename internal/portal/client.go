// Package portal performs http round trips against the fleet portal under one cookie jar and
// classifies the pages it gets back.
package portal

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"fleetassist-backend/internal/components/assert"
	"fleetassist-backend/internal/components/telemetry"
	"fleetassist-backend/internal/portal/cookiestore"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const (
	report_client_fetch = "client.fetch"
	report_client_post  = "client.post-json"
	report_client_jar   = "client.jar"
)

// ErrTransport marks failures where no usable http response was obtained.
var ErrTransport = errors.New("transport error")

// ErrSessionExpired marks a response that turned out to be the portal's login page.
var ErrSessionExpired = errors.New("session expired")

const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"

type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	// RequestsPerSecond of 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int
	// InsecureSkipVerify disables tls certificate and host verification.
	InsecureSkipVerify bool
	Detector           LoginDetector
	// Output receives every rendered exchange when set.
	Output telemetry.MessageOutput
}

func DefaultOptions() Options {
	return Options{
		UserAgent:          DefaultUserAgent,
		Timeout:            time.Second * 30,
		MaxRedirects:       10,
		RequestsPerSecond:  2,
		Burst:              2,
		InsecureSkipVerify: true,
		Detector:           DefaultLoginDetector(),
	}
}

// FetchResult is the outcome of one round trip, it is never mutated after being returned.
type FetchResult struct {
	Success     bool
	Error       string
	Body        string
	Headers     http.Header
	StatusCode  int
	FinalURL    string
	IsLoginPage bool
}

// Err returns ErrTransport wrapped with the failure description when Success is false.
func (r FetchResult) Err() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTransport, r.Error)
}

type Client struct {
	http     *resty.Client
	jar      *cookiestore.Jar
	detector LoginDetector
	tel      telemetry.API
}

func NewClient(jar *cookiestore.Jar, opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(jar, "jar")
	assert.NotNil(tel, "tel")

	tel = telemetry.NewScopedAPI("portal", tel)

	httpClient := resty.New()
	httpClient.SetCookieJar(jar)
	httpClient.SetHeader("user-agent", opts.UserAgent)
	httpClient.SetTimeout(opts.Timeout)
	httpClient.SetRedirectPolicy(resty.FlexibleRedirectPolicy(opts.MaxRedirects))

	transport := http.DefaultTransport.(*http.Transport).Clone()
	httpClient.SetTransport(cloudflarebp.AddCloudFlareByPass(transport))
	// the bypass installs its own tls config, verification has to be relaxed after it
	if opts.InsecureSkipVerify {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{}
		}
		transport.TLSClientConfig.InsecureSkipVerify = true
	}

	if opts.RequestsPerSecond > 0 {
		// max burst >= 2 just means that no requests will be dropped
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(opts.Burst, 1))
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel, opts.Output)

	detector := opts.Detector
	if len(detector.Indicators) == 0 {
		detector = DefaultLoginDetector()
	}

	return &Client{
		http:     httpClient,
		jar:      jar,
		detector: detector,
		tel:      tel,
	}, nil
}

// Jar returns the cookie jar every round trip of this client goes through.
func (c *Client) Jar() *cookiestore.Jar {
	return c.jar
}

func (c *Client) Detector() LoginDetector {
	return c.detector
}

// Fetch performs a GET against url. Failures never escape as errors, they are described by
// a FetchResult with Success set to false.
func (c *Client) Fetch(ctx context.Context, url string) FetchResult {
	res, err := c.http.R().
		SetContext(ctx).
		Get(url)
	return c.result(report_client_fetch, url, res, err)
}

// PostJSON POSTs body (marshalled as json) to url with the given extra headers.
func (c *Client) PostJSON(ctx context.Context, url string, body any, headers map[string]string) FetchResult {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetHeader("accept", "*/*").
		SetHeaders(headers).
		SetBody(body).
		Post(url)
	return c.result(report_client_post, url, res, err)
}

func (c *Client) result(reportId, url string, res *resty.Response, err error) FetchResult {
	if err != nil {
		c.tel.ReportWarning(reportId, fmt.Errorf("request: %w", err), url)
		return FetchResult{Success: false, Error: err.Error(), FinalURL: url}
	}
	if jarErr := c.jar.Err(); jarErr != nil {
		c.tel.ReportBroken(report_client_jar, jarErr, c.jar.Path())
		return FetchResult{
			Success:    false,
			Error:      jarErr.Error(),
			StatusCode: res.StatusCode(),
			FinalURL:   url,
		}
	}

	finalUrl := url
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL.String()
	}

	body := decodeBody(res.Body(), res.Header().Get("content-type"))

	return FetchResult{
		Success:     true,
		Body:        body,
		Headers:     res.Header(),
		StatusCode:  res.StatusCode(),
		FinalURL:    finalUrl,
		IsLoginPage: c.detector.IsLoginPage(finalUrl, body),
	}
}

// decodeBody converts body to UTF-8. Bodies are taken as UTF-8 unless the server declares
// another charset or the bytes are not valid UTF-8, then the charset is declared or sniffed.
func decodeBody(body []byte, contentType string) string {
	label := declaredCharset(contentType)
	if label == "" || isUTF8Label(label) {
		if utf8.Valid(body) {
			return string(body)
		}
		if label != "" {
			return strings.ToValidUTF8(string(body), string(utf8.RuneError))
		}
		return convertBody(body, func(r io.Reader) (io.Reader, error) {
			return charset.NewReader(r, contentType)
		})
	}
	return convertBody(body, func(r io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(label, r)
	})
}

func declaredCharset(contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

func isUTF8Label(label string) bool {
	return label == "utf-8" || label == "utf8"
}

func convertBody(body []byte, newReader func(io.Reader) (io.Reader, error)) string {
	reader, err := newReader(bytes.NewReader(body))
	if err != nil {
		return strings.ToValidUTF8(string(body), string(utf8.RuneError))
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return strings.ToValidUTF8(string(body), string(utf8.RuneError))
	}
	return strings.ToValidUTF8(string(decoded), string(utf8.RuneError))
}
