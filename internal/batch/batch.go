// Package batch executes OData $batch requests: the multipart body is
// decomposed into plain requests and changesets, each operation is
// dispatched through the ordinary single-request path, and the
// responses are re-composed into a multipart envelope preserving the
// original request order.
package batch

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"

	"github.com/google/uuid"
	"github.com/objectql/odata/internal/observability"
	"github.com/objectql/odata/internal/response"
	"go.opentelemetry.io/otel/trace"
)

// Handler handles $batch requests by dispatching each part through the
// service's single-request handler.
type Handler struct {
	service       http.Handler
	logger        *slog.Logger
	compensation  CompensationLog
	observability *observability.Config
}

// NewHandler creates a batch handler dispatching through service.
func NewHandler(service http.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:      service,
		logger:       logger,
		compensation: NewLoggedCompensation(logger),
	}
}

// SetObservability configures tracing and metrics for batch execution.
func (h *Handler) SetObservability(cfg *observability.Config) {
	h.observability = cfg
}

// SetCompensationLog replaces the default logged compensation.
func (h *Handler) SetCompensationLog(log CompensationLog) {
	if log != nil {
		h.compensation = log
	}
}

// partRequest is a single request within a batch.
type partRequest struct {
	Method    string
	URL       string
	Headers   http.Header
	Body      []byte
	ContentID string
}

// partResponse is a single response within a batch.
type partResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	ContentID  string
}

// HandleBatch handles the $batch endpoint. Individual malformed parts
// become error responses inside the 200 multipart envelope; only a
// batch-level parse failure (unreadable boundary) fails the whole
// request with 400.
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var batchSpan trace.Span
	if h.observability != nil {
		ctx, batchSpan = h.observability.Tracer().StartBatch(ctx, 0)
		defer batchSpan.End()
		r = r.WithContext(ctx)
	}

	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, response.CodeMethodNotAllowed,
			"Only POST is supported for $batch requests")
		return
	}

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, response.CodeBadRequest,
			fmt.Sprintf("Failed to parse Content-Type header: %v", err))
		return
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		h.writeError(w, http.StatusBadRequest, response.CodeBadRequest,
			"$batch requests must use multipart/mixed Content-Type")
		return
	}
	boundary, ok := params["boundary"]
	if !ok {
		h.writeError(w, http.StatusBadRequest, response.CodeBadRequest,
			"Content-Type must include a boundary parameter")
		return
	}

	reader := multipart.NewReader(r.Body, boundary)
	var responses []partResponse

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.writeError(w, http.StatusBadRequest, response.CodeBadRequest,
				fmt.Sprintf("Failed to read batch part: %v", err))
			return
		}

		partMediaType, partParams, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			responses = append(responses, errorPart(http.StatusBadRequest, "Invalid part Content-Type"))
			continue
		}

		switch {
		case strings.HasPrefix(partMediaType, "multipart/"):
			// A nested multipart section with its own inner boundary
			// is a changeset.
			innerBoundary, ok := partParams["boundary"]
			if !ok {
				responses = append(responses, errorPart(http.StatusBadRequest, "Missing changeset boundary"))
				continue
			}
			responses = append(responses, h.executeChangeset(r, part, innerBoundary)...)

		case partMediaType == "application/http":
			contentID := part.Header.Get("Content-ID")
			req, err := parseHTTPRequest(part)
			if err != nil {
				errResp := errorPart(http.StatusBadRequest, fmt.Sprintf("Failed to parse request: %v", err))
				errResp.ContentID = contentID
				responses = append(responses, errResp)
				continue
			}
			req.ContentID = contentID
			resp := h.executeRequest(r, req)
			resp.ContentID = contentID
			responses = append(responses, resp)

		default:
			responses = append(responses, errorPart(http.StatusBadRequest, "Invalid part Content-Type"))
		}
	}

	h.writeBatchResponse(w, responses)

	if h.observability != nil {
		batchSpan.SetAttributes(observability.BatchSizeAttr(len(responses)))
		h.observability.Metrics().RecordBatchSize(ctx, len(responses))
	}
}

// executeChangeset runs the operations of one changeset strictly
// sequentially, in part order. The first response with a 4xx/5xx status
// aborts the remaining operations: they are never dispatched and answer
// 424 instead, reporting how many operations completed before the
// abort. Already-completed operations are handed to the compensation
// log; see CompensationLog for the (intentionally incomplete) rollback
// contract.
func (h *Handler) executeChangeset(parent *http.Request, body io.Reader, boundary string) []partResponse {
	reader := multipart.NewReader(body, boundary)

	var requests []partRequest
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return []partResponse{errorPart(http.StatusBadRequest,
				fmt.Sprintf("Failed to read changeset part: %v", err))}
		}

		contentID := part.Header.Get("Content-ID")
		req, err := parseHTTPRequest(part)
		if err != nil {
			return []partResponse{errorPart(http.StatusBadRequest,
				fmt.Sprintf("Failed to parse changeset request: %v", err))}
		}
		req.ContentID = contentID
		requests = append(requests, req)
	}

	responses := make([]partResponse, 0, len(requests))
	var completed []CompensatedOperation
	aborted := false

	for _, req := range requests {
		if aborted {
			resp := errorPart(http.StatusFailedDependency, fmt.Sprintf(
				"Operation skipped: changeset aborted after %d operations completed before abort", len(completed)))
			resp.ContentID = req.ContentID
			responses = append(responses, resp)
			continue
		}

		resp := h.executeRequest(parent, req)
		resp.ContentID = req.ContentID
		responses = append(responses, resp)
		completed = append(completed, CompensatedOperation{
			Method:     req.Method,
			URL:        req.URL,
			StatusCode: resp.StatusCode,
		})

		if resp.StatusCode >= 400 {
			aborted = true
			h.logger.Warn("Changeset aborted",
				"completed", len(completed),
				"failed_url", req.URL,
				"status", resp.StatusCode,
			)
			for _, op := range completed[:len(completed)-1] {
				h.compensation.Record(parent.Context(), op)
			}
		}
	}

	return responses
}

// parseHTTPRequest parses one application/http part: a request line
// (METHOD URL), MIME headers, and the remaining body.
func parseHTTPRequest(r io.Reader) (partRequest, error) {
	reader := bufio.NewReader(r)

	requestLine, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return partRequest{}, fmt.Errorf("failed to read request line: %w", err)
	}
	requestLine = strings.TrimRight(requestLine, "\r\n")
	if requestLine == "" {
		return partRequest{}, fmt.Errorf("empty request")
	}

	fields := strings.Fields(requestLine)
	if len(fields) < 2 {
		return partRequest{}, fmt.Errorf("invalid request line: %s", requestLine)
	}

	tp := textproto.NewReader(reader)
	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return partRequest{}, fmt.Errorf("failed to read headers: %w", err)
	}

	headers := make(http.Header, len(mimeHeader))
	for key, values := range mimeHeader {
		for _, value := range values {
			headers.Add(key, value)
		}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return partRequest{}, fmt.Errorf("failed to read body: %w", err)
	}

	return partRequest{
		Method:  fields[0],
		URL:     fields[1],
		Headers: headers,
		Body:    bytes.TrimSpace(body),
	}, nil
}

// executeRequest dispatches one part through the single-request path.
func (h *Handler) executeRequest(parent *http.Request, req partRequest) partResponse {
	url := req.URL
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}

	// Nested $batch would recurse through this handler.
	if strings.Trim(url, "/") == "$batch" {
		return errorPart(http.StatusMethodNotAllowed, "Nested $batch requests are not supported")
	}

	httpReq := httptest.NewRequest(req.Method, url, bytes.NewReader(req.Body))
	httpReq = httpReq.WithContext(parent.Context())
	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	recorder := httptest.NewRecorder()
	h.service.ServeHTTP(recorder, httpReq)

	return partResponse{
		StatusCode: recorder.Code,
		Headers:    recorder.Header(),
		Body:       recorder.Body.Bytes(),
	}
}

// errorCodeForStatus maps a part's HTTP status to the OData error code
// named in its error document.
func errorCodeForStatus(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return response.CodeBadRequest
	case http.StatusMethodNotAllowed:
		return response.CodeMethodNotAllowed
	case http.StatusFailedDependency:
		return response.CodeFailedDependency
	default:
		return response.CodeInternalServerError
	}
}

// errorPart creates an HTTP-shaped error response for one part.
func errorPart(statusCode int, message string) partResponse {
	body := fmt.Sprintf(`{"error":{"code":%q,"message":%q}}`, errorCodeForStatus(statusCode), message)
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers[response.HeaderODataVersion] = []string{response.ODataVersionValue}

	return partResponse{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       []byte(body),
	}
}

// writeBatchResponse wraps all part responses in a multipart/mixed
// envelope with a freshly generated boundary, preserving request order.
func (h *Handler) writeBatchResponse(w http.ResponseWriter, responses []partResponse) {
	boundary := "batchresponse_" + uuid.NewString()

	w.Header().Set("Content-Type", fmt.Sprintf("multipart/mixed; boundary=%s", boundary))
	response.SetODataVersionHeader(w)
	w.WriteHeader(http.StatusOK)

	var builder bytes.Buffer
	for _, resp := range responses {
		fmt.Fprintf(&builder, "--%s\r\n", boundary)
		builder.WriteString("Content-Type: application/http\r\n")
		builder.WriteString("Content-Transfer-Encoding: binary\r\n")
		if resp.ContentID != "" {
			fmt.Fprintf(&builder, "Content-ID: %s\r\n", resp.ContentID)
		}
		builder.WriteString("\r\n")

		fmt.Fprintf(&builder, "HTTP/1.1 %d %s\r\n", resp.StatusCode, http.StatusText(resp.StatusCode))
		for key, values := range resp.Headers {
			for _, value := range values {
				fmt.Fprintf(&builder, "%s: %s\r\n", key, value)
			}
		}
		builder.WriteString("\r\n")
		builder.Write(resp.Body)
		builder.WriteString("\r\n")
	}
	fmt.Fprintf(&builder, "--%s--\r\n", boundary)

	if _, err := w.Write(builder.Bytes()); err != nil {
		h.logger.Error("Error writing batch response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code string, message string) {
	if err := response.WriteError(w, status, code, message); err != nil {
		h.logger.Error("Error writing error response", "error", err)
	}
}
