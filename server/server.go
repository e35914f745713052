package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ribon-matchalatte/backend/ledger"
	service_registry "github.com/ribon-matchalatte/backend/srvreg"
)

// Ledger statuses reported in response metadata
const (
	LedgerConfirmed  = "confirmed"
	LedgerUnrecorded = "unrecorded"
	LedgerDisabled   = "disabled"
	LedgerNotAudited = "not_audited"
)

// WebServer handles HTTP requests
type WebServer struct {
	httpAddr        string
	server          *http.Server
	logger          cmtlog.Logger
	startTime       time.Time
	serviceRegistry *service_registry.ServiceRegistry
	ledger          ledger.Ledger
	requestTimeout  time.Duration
}

// TransactionStatus describes how a request was recorded in the audit ledger
type TransactionStatus struct {
	RequestID    string       `json:"request_id"`
	Status       string       `json:"status"`
	Subject      string       `json:"subject,omitempty"`
	TxID         string       `json:"tx_id,omitempty"`
	TxHash       string       `json:"tx_hash,omitempty"`
	BlockHeight  int64        `json:"block_height,omitempty"`
	ConfirmTime  *time.Time   `json:"confirm_time,omitempty"`
	ResponseInfo ResponseInfo `json:"response_info"`
}

// ResponseInfo contains information about the response
type ResponseInfo struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	BodyLength  int    `json:"body_length"`
}

// ClientResponse is the response format sent to clients
type ClientResponse struct {
	StatusCode int               `json:"-"`
	Headers    map[string]string `json:"-"`
	Body       interface{}       `json:"body"`
	Meta       TransactionStatus `json:"meta"`
}

func NewWebServer(httpPort string, serviceRegistry *service_registry.ServiceRegistry, l ledger.Ledger, logger cmtlog.Logger) *WebServer {
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	if l == nil {
		l = ledger.Nop{}
	}
	mux := http.NewServeMux()
	server := &WebServer{
		httpAddr: ":" + httpPort,
		server: &http.Server{
			Addr:              ":" + httpPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger:          logger.With("module", "webserver"),
		startTime:       time.Now(),
		serviceRegistry: serviceRegistry,
		ledger:          l,
		requestTimeout:  30 * time.Second,
	}

	mux.HandleFunc("/", server.handleRoot)
	mux.HandleFunc("/debug", server.handleDebug)
	mux.HandleFunc("/api/", server.handleAPI)
	mux.HandleFunc("/ledger/", server.handleLedger)

	return server
}

// Handler exposes the routes, mainly for tests
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("web server error: ", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

func (ws *WebServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		JSONError(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte("<h1>Ribon Matchalatte</h1>"))
	if info, err := ws.ledger.Info(r.Context()); err == nil && info.Enabled {
		w.Write([]byte("<p>Ledger node ID: " + html.EscapeString(info.NodeID) + "</p>"))
	}
}

func (ws *WebServer) handleDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	debugInfo := map[string]interface{}{
		"uptime": time.Since(ws.startTime).String(),
	}
	info, err := ws.ledger.Info(r.Context())
	if err != nil {
		debugInfo["ledger_error"] = err.Error()
	} else {
		debugInfo["ledger"] = info
	}

	writeJSON(w, http.StatusOK, debugInfo, ws.logger)
}

// handleAPI runs the request through the service registry. Successful requests on
// audited routes are then appended to the ledger; a ledger failure is reported in
// the metadata but does not undo the already committed change.
func (ws *WebServer) handleAPI(w http.ResponseWriter, r *http.Request) {
	requestID, err := generateRequestID()
	if err != nil {
		JSONError(w, "Internal Server Error", http.StatusInternalServerError)
		ws.logger.Error("Failed to generate request ID", "err", err)
		return
	}

	request, err := service_registry.ConvertHttpRequestToConsensusRequest(r, requestID)
	if err != nil {
		JSONError(w, "Failed to convert request: "+err.Error(), http.StatusUnprocessableEntity)
		ws.logger.Error("Failed to convert HTTP request", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ws.requestTimeout)
	defer cancel()
	response := request.GenerateResponse(ctx, ws.serviceRegistry)

	meta := TransactionStatus{
		RequestID: requestID,
		Status:    LedgerNotAudited,
		ResponseInfo: ResponseInfo{
			StatusCode:  response.StatusCode,
			ContentType: response.Headers["Content-Type"],
			BodyLength:  len(response.Body),
		},
	}
	if request.Subject != "" && response.Successful() {
		meta.Subject = request.Subject
		ws.record(ctx, request, response, &meta)
	}

	apiResponse := ClientResponse{
		StatusCode: response.StatusCode,
		Headers:    response.Headers,
		Body:       response.ParseBody(),
		Meta:       meta,
	}
	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	writeJSON(w, response.StatusCode, apiResponse, ws.logger)

	ws.logger.Debug("Request served",
		"method", request.Method,
		"path", request.Path,
		"status", response.StatusCode,
		"ledger", meta.Status,
	)
}

func (ws *WebServer) record(ctx context.Context, request *service_registry.Request, response *service_registry.Response, meta *TransactionStatus) {
	transaction := &service_registry.Transaction{
		Request:  *request,
		Response: *response,
		Subject:  request.Subject,
	}
	receipt, err := ws.ledger.Record(ctx, transaction)
	switch {
	case err != nil:
		ws.logger.Error("Failed to record ledger transaction", "subject", request.Subject, "request_id", request.RequestID, "err", err)
		meta.Status = LedgerUnrecorded
	case receipt == nil:
		meta.Status = LedgerDisabled
	default:
		now := time.Now()
		meta.Status = LedgerConfirmed
		meta.TxID = receipt.TxID
		meta.TxHash = receipt.TxHash
		meta.BlockHeight = receipt.BlockHeight
		meta.ConfirmTime = &now
	}
}

// handleLedger returns the audit trail of an order: GET /ledger/:orderID
func (ws *WebServer) handleLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	orderID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ledger/"), "/")
	if orderID == "" || strings.Contains(orderID, "/") {
		JSONError(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	entries, err := ws.ledger.Entries(r.Context(), service_registry.SubjectOrder+":"+orderID)
	if errors.Is(err, ledger.ErrDisabled) {
		JSONError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		ws.logger.Error("Failed to read ledger", "order_id", orderID, "err", err)
		JSONError(w, "Error reading ledger: "+err.Error(), http.StatusInternalServerError)
		return
	}

	type entry struct {
		service_registry.Transaction
		ResponseBody interface{} `json:"response_body"`
	}
	out := make([]entry, 0, len(entries))
	for _, tx := range entries {
		out = append(out, entry{Transaction: tx, ResponseBody: tx.Response.ParseBody()})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"order_id": orderID, "entries": out}, ws.logger)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger cmtlog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		logger.Error("Failed to encode client response", "err", err)
	}
}

func generateRequestID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// JSONError sends a JSON formatted error response with the given status code and message
func JSONError(w http.ResponseWriter, message string, statusCode int) {
	jsonBytes, err := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: message})
	if err != nil {
		http.Error(w, message, statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(jsonBytes)
}
