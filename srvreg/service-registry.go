package srvreg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/shop"
)

// Request represents the client's original HTTP request
type Request struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Query      map[string]string `json:"query,omitempty"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	RemoteAddr string            `json:"remote_addr"`
	RequestID  string            `json:"request_id"`
	Timestamp  time.Time         `json:"timestamp"`

	// filled in when the request is matched to a route
	Params  map[string]string `json:"params,omitempty"`
	Subject string            `json:"-"`
}

// Response represents the computed response from a server
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Error      string            `json:"error,omitempty"`
}

// ParseBody returns the decoded JSON body, or nil when the body is empty or not JSON
func (r *Response) ParseBody() interface{} {
	if r.Body == "" {
		return nil
	}
	var body interface{}
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		return nil
	}
	return body
}

// Successful reports a 2xx status
func (r *Response) Successful() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transaction pairs a stock-affecting request with its response. Subject names the
// record it concerns, e.g. "order:<id>", and is what the audit ledger indexes by.
type Transaction struct {
	Request      Request  `json:"request"`
	Response     Response `json:"response"`
	Subject      string   `json:"subject"`
	OriginNodeID string   `json:"origin_node_id"`
	BlockHeight  int64    `json:"block_height,omitempty"`
}

// SerializeToBytes converts the transaction to a byte array for ledger storage
func (t *Transaction) SerializeToBytes() ([]byte, error) {
	return json.Marshal(t)
}

// ServiceHandler computes the result of a request. A returned error is mapped to an
// HTTP status by the registry.
type ServiceHandler func(ctx context.Context, req *Request) (*Response, error)

// Route binds a method and path pattern to a handler. Pattern segments starting
// with ':' match any value and are exposed through Request.Params.
type Route struct {
	Method  string
	Pattern string
	Handler ServiceHandler
	// Audit is the subject kind recorded in the ledger for successful calls; the
	// route's :id parameter completes the subject. Empty when not audited.
	Audit string
}

// ServiceRegistry manages all service handlers
type ServiceRegistry struct {
	routes    []Route
	mu        sync.RWMutex
	shop      *shop.Service
	inventory *inventory.Service
	logger    cmtlog.Logger
}

// ConvertHttpRequestToConsensusRequest converts an http.Request to Request
func ConvertHttpRequestToConsensusRequest(r *http.Request, requestID string) (*Request, error) {
	headers := make(map[string]string)
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}
	query := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}

	body := ""
	if r.Body != nil {
		bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		body = compactJSON(string(bodyBytes))
	}

	return &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      query,
		Headers:    headers,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
		RequestID:  requestID,
		Timestamp:  time.Now(),
	}, nil
}

func NewServiceRegistry(shopService *shop.Service, inventoryService *inventory.Service, logger cmtlog.Logger) *ServiceRegistry {
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	return &ServiceRegistry{
		shop:      shopService,
		inventory: inventoryService,
		logger:    logger.With("module", "srvreg"),
	}
}

// RegisterHandler registers a new service handler. audit is the ledger subject kind
// or "" for routes that are not recorded.
func (sr *ServiceRegistry) RegisterHandler(method, pattern, audit string, handler ServiceHandler) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sr.routes = append(sr.routes, Route{
		Method:  strings.ToUpper(method),
		Pattern: pattern,
		Handler: handler,
		Audit:   audit,
	})
}

// GetHandlerForPath finds the route for a request. Literal routes win over
// patterns; among patterns the first registered match wins.
func (sr *ServiceRegistry) GetHandlerForPath(method, path string) (*Route, map[string]string, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	method = strings.ToUpper(method)
	for i := range sr.routes {
		route := &sr.routes[i]
		if route.Method == method && route.Pattern == path {
			return route, map[string]string{}, true
		}
	}
	for i := range sr.routes {
		route := &sr.routes[i]
		if route.Method != method || !strings.Contains(route.Pattern, ":") {
			continue
		}
		if params, ok := matchPath(route.Pattern, path); ok {
			return route, params, true
		}
	}
	return nil, nil, false
}

// matchPath supports patterns like "/api/orders/:id" matching "/api/orders/123"
func matchPath(pattern, path string) (map[string]string, bool) {
	patternParts := strings.Split(strings.TrimSuffix(pattern, "/"), "/")
	pathParts := strings.Split(strings.TrimSuffix(path, "/"), "/")

	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	params := make(map[string]string)
	for i := range len(patternParts) {
		if name, ok := strings.CutPrefix(patternParts[i], ":"); ok {
			if pathParts[i] == "" {
				return nil, false
			}
			params[name] = pathParts[i]
			continue
		}
		if patternParts[i] != pathParts[i] {
			return nil, false
		}
	}
	return params, true
}

// GenerateResponse executes the request and generates a response. The request's
// Params and Subject are filled in from the matched route.
func (req *Request) GenerateResponse(ctx context.Context, services *ServiceRegistry) *Response {
	route, params, found := services.GetHandlerForPath(req.Method, req.Path)
	if !found {
		return errorBody(http.StatusNotFound, "not_found", fmt.Sprintf("Service not found for %s %s", req.Method, req.Path), nil)
	}
	req.Params = params
	if route.Audit != "" {
		req.Subject = route.Audit + ":" + params["id"]
	}

	response, err := route.Handler(ctx, req)
	if err != nil {
		response = services.errorResponse(req, err)
	}
	return response
}

func compactJSON(body string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(body)); err != nil {
		return strings.TrimSpace(body)
	}
	return buf.String()
}
