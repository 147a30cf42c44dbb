package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

// MessageOutput receives a fully rendered request/response exchange, it is used to
// inspect what a scraper actually sent and received.
type MessageOutput interface {
	Write(id string, contents string)
}

// FilesystemOutput writes every exchange into its own file under a directory.
type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput clears and recreates dir.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

type instrumentResty struct {
	tel       API
	tracer    trace.Tracer
	output    MessageOutput
	idcounter *uint64
}

// InstrumentResty reports every request made by client to tel and wraps it in an otel span.
// `output` may be nil, when it is set every completed exchange is rendered into it.
func InstrumentResty(client *resty.Client, tel API, output MessageOutput) {
	var idcounter uint64
	i := instrumentResty{
		tel:       tel,
		tracer:    otel.Tracer("fleetassist/resty"),
		output:    output,
		idcounter: &idcounter,
	}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id   uint64
	span trace.Span
	// only the difference between two readings is used, so the monotonic clock is fine here.
	startTime time.Time
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	ctx, span := i.tracer.Start(req.Context(), fmt.Sprintf("http %s", req.Method))

	id := atomic.AddUint64(i.idcounter, 1)
	ctx = context.WithValue(ctx, reqCtxKey, reqCtx{
		id:        id,
		span:      span,
		startTime: time.Now(),
	})
	i.tel.ReportDebug(report_resty_request, id, req.Method, req.URL)

	req.SetContext(ctx)
	return nil
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	rc, ok := res.Request.Context().Value(reqCtxKey).(reqCtx)
	if !ok {
		return nil
	}
	span := rc.span
	defer span.End()

	span.SetAttributes(
		attribute.String("http.method", res.Request.Method),
		attribute.String("http.url", res.Request.URL),
		attribute.Int("http.status_code", res.StatusCode()),
	)
	if res.StatusCode() >= 500 {
		span.SetStatus(codes.Error, res.Status())
	}

	i.tel.ReportDebug(
		report_resty_response,
		rc.id,
		time.Since(rc.startTime).String(),
		res.Status(),
	)
	if i.output != nil {
		i.output.Write(strconv.FormatUint(rc.id, 10), formatHttpMessage(res))
	}

	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	// the span only exists when onBeforeRequest ran, an earlier hook may have failed
	var duration time.Duration
	rc, ok := req.Context().Value(reqCtxKey).(reqCtx)
	if ok {
		duration = time.Since(rc.startTime)
		rc.span.RecordError(err)
		rc.span.SetStatus(codes.Error, "request failed")
		rc.span.End()
	}

	i.tel.ReportWarning(
		report_resty_response,
		err,
		req.Method,
		req.URL,
		duration,
	)
}

func formatHeaders(headers http.Header) string {
	var out strings.Builder
	for k, vals := range headers {
		for _, v := range vals {
			out.WriteString(fmt.Sprintf("%s: %s\n", k, v))
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func formatRequestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return "<NO BODY AVAILABLE>"
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	readBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	return string(readBody)
}

// 1: request method
// 2: request url
// 3: request headers in ("Key: Value" format)
// 4: request body
// 5: response status
// 6: response url
// 7: response headers in ("Key: Value" format)
// 8: response body
const messageInfoTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s %s

%s

%s`

func formatHttpMessage(res *resty.Response) string {
	var requestHeaders string
	if res.Request.RawRequest != nil {
		requestHeaders = formatHeaders(res.Request.RawRequest.Header)
	}

	responseUrl := res.Request.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		responseUrl = res.RawResponse.Request.URL.String()
	}

	return fmt.Sprintf(
		messageInfoTemplate,

		res.Request.Method, res.Request.URL,
		requestHeaders,
		formatRequestBody(res.Request.RawRequest),

		strconv.Itoa(res.StatusCode()), responseUrl,
		formatHeaders(res.Header()),
		res.String(),
	)
}
