package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	herrors "homework-agent/internal/http/errors"
	"homework-agent/internal/http/validation"
	"homework-agent/internal/model"
	"homework-agent/internal/scheduler"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAddr = "127.0.0.1:58701"

	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	maxBodyBytes        = 1 << 20
	historyReadTimeout  = 5 * time.Second
)

type ConfigApplier interface {
	ApplyConfig(cfg model.Config) error
}

type SchedulerService interface {
	ConfigApplier
	Status() scheduler.Status
	FastStatus() scheduler.Status
}

type HistoryReader interface {
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	LastRun(ctx context.Context) (model.RunRecord, error)
}

// Deps are the collaborators the control plane fronts. History and UIDir are
// optional.
type Deps struct {
	Config    model.ConfigService
	Scheduler SchedulerService
	Documents model.DocumentService
	Autostart model.AutostartService
	Window    model.WindowService
	History   HistoryReader
	// Exit asks the application to shut down once the response is written.
	Exit  func()
	UIDir string
}

type controlServer struct {
	deps     Deps
	pipeline *configPipeline
	validate *validator.Validate
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	writeJSONStatus(w, v, http.StatusOK)
}

func writeJSONStatus(w http.ResponseWriter, v interface{}, statusCode int) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "error forming response data", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(js)
}

var (
	saveConfigErrorHandler      = herrors.NewErrorHandler("SaveConfig")
	historyErrorHandler         = herrors.NewErrorHandler("SchedulerHistory")
	selectFileErrorHandler      = herrors.NewErrorHandler("SelectFile")
	previewErrorHandler         = herrors.NewErrorHandler("PreviewHomework")
	sendHomeworkErrorHandler    = herrors.NewErrorHandler("SendHomework")
	sendContentErrorHandler     = herrors.NewErrorHandler("SendContent")
	windowErrorHandler          = herrors.NewErrorHandler("Window")
	exitErrorHandler            = herrors.NewErrorHandler("Exit")
	autostartStatusErrorHandler = herrors.NewErrorHandler("AutostartStatus")
	autostartApplyErrorHandler  = herrors.NewErrorHandler("AutostartApply")
	routingErrorHandler         = herrors.NewErrorHandler("Routing")
)

type successResponse struct {
	Success bool `json:"success"`
}

var okResponse = successResponse{Success: true}

type pingResponse struct {
	Success bool `json:"success"`
	Pong    bool `json:"pong"`
}

type configResponse struct {
	Success bool `json:"success"`
	model.Config
}

type statusResponse struct {
	Success bool `json:"success"`
	scheduler.Status
}

type fullStatusResponse struct {
	Success bool `json:"success"`
	scheduler.Status
	LastRun *model.RunRecord `json:"last_run"`
}

type historyResponse struct {
	Success bool              `json:"success"`
	Runs    []model.RunRecord `json:"runs"`
}

type fileResponse struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path"`
}

type previewResponse struct {
	Success bool `json:"success"`
	model.Preview
}

type sendResponse struct {
	Success bool `json:"success"`
	model.SendResult
}

type autostartStatusResponse struct {
	Success bool `json:"success"`
	model.AutostartStatus
}

type autostartApplyResponse struct {
	Success bool `json:"success"`
	model.AutostartResult
}

type fileRequest struct {
	FilePath string `json:"file_path"`
}

type contentRequest struct {
	Content string `json:"content"`
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched; unknown keys are ignored.
func decodeBody(req *http.Request, v interface{}) error {
	if contentType := req.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return fmt.Errorf("failed to parse media type: %w", err)
		}
		if mediaType != "application/json" && mediaType != "text/plain" {
			return fmt.Errorf("expect application/json Content-Type, got %s", mediaType)
		}
	}
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (cs *controlServer) pingHandler(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, pingResponse{Success: true, Pong: true})
}

func (cs *controlServer) getConfigHandler(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, configResponse{Success: true, Config: cs.deps.Config.Get()})
}

func (cs *controlServer) saveConfigHandler(w http.ResponseWriter, req *http.Request) {
	patch := model.ConfigPatch{}
	if err := decodeBody(req, &patch); err != nil {
		saveConfigErrorHandler.WriteAndLogError(
			w,
			"failed to parse request body",
			err,
			http.StatusBadRequest,
			log.Fields{},
		)
		return
	}
	if patch.AccessToken != nil {
		token := model.NormalizeAccessToken(*patch.AccessToken)
		patch.AccessToken = &token
	}

	if err := cs.validate.StructCtx(req.Context(), patch); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			saveConfigErrorHandler.WriteAndLogValidationErrors(w, validationErrors, log.Fields{})
			return
		}
		saveConfigErrorHandler.WriteAndLogError(w, "failed to validate configuration", err, http.StatusBadRequest, log.Fields{})
		return
	}

	result := cs.pipeline.run(patch)
	if !result.Success {
		saveConfigErrorHandler.LogError("configuration write failed", result.err, http.StatusInternalServerError, log.Fields{
			"persisted": result.Persisted,
			"stages":    result.Stages,
		})
		writeJSONStatus(w, result, http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

func (cs *controlServer) schedulerStatusHandler(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, statusResponse{Success: true, Status: cs.deps.Scheduler.FastStatus()})
}

func (cs *controlServer) schedulerFullStatusHandler(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, fullStatusResponse{Success: true, Status: cs.deps.Scheduler.Status(), LastRun: cs.lastRun(req.Context())})
}

// lastRun is the most recent recorded send, or nil when there is none or the
// history cannot be read.
func (cs *controlServer) lastRun(ctx context.Context) *model.RunRecord {
	if cs.deps.History == nil {
		return nil
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, historyReadTimeout)
	defer cancel()
	run, err := cs.deps.History.LastRun(timeoutCtx)
	if err != nil {
		if !errors.Is(err, model.ErrorNotFound) {
			log.WithFields(log.Fields{"error": err}).Warn("Failed reading last run")
		}
		return nil
	}
	return &run
}

func (cs *controlServer) schedulerHistoryHandler(w http.ResponseWriter, req *http.Request) {
	limit := defaultHistoryLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxHistoryLimit {
			historyErrorHandler.WriteAndLogErrorMsg(
				w,
				fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit),
				http.StatusBadRequest,
				log.Fields{"limit": raw},
			)
			return
		}
		limit = parsed
	}
	if cs.deps.History == nil {
		writeJSON(w, historyResponse{Success: true, Runs: []model.RunRecord{}})
		return
	}

	timeoutCtx, cancel := context.WithTimeout(req.Context(), historyReadTimeout)
	defer cancel()
	runs, err := cs.deps.History.ListRuns(timeoutCtx, limit)
	if err != nil {
		historyErrorHandler.WriteAndLogError(w, "failed to read run history", err, http.StatusInternalServerError, log.Fields{})
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	writeJSON(w, historyResponse{Success: true, Runs: runs})
}

func (cs *controlServer) selectFileHandler(w http.ResponseWriter, req *http.Request) {
	path, err := cs.deps.Documents.SelectFile(req.Context())
	if err != nil {
		selectFileErrorHandler.WriteAndLogError(w, "failed to select file", err, http.StatusInternalServerError, log.Fields{})
		return
	}
	writeJSON(w, fileResponse{Success: true, FilePath: path})
}

// resolveFilePath returns the path from the request body, falling back to the
// stored document path.
func (cs *controlServer) resolveFilePath(w http.ResponseWriter, req *http.Request, eh *herrors.ErrorHandler) (string, bool) {
	body := fileRequest{}
	if err := decodeBody(req, &body); err != nil {
		eh.WriteAndLogError(w, "failed to parse request body", err, http.StatusBadRequest, log.Fields{})
		return "", false
	}
	path := strings.TrimSpace(body.FilePath)
	if path == "" {
		path = cs.deps.Config.Get().PPTFilePath
	}
	if path == "" {
		eh.WriteAndLogErrorMsg(w, "no file path provided", http.StatusBadRequest, log.Fields{})
		return "", false
	}
	return path, true
}

func documentErrorStatus(err error) int {
	if errors.Is(err, model.ErrorNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (cs *controlServer) previewHandler(w http.ResponseWriter, req *http.Request) {
	path, ok := cs.resolveFilePath(w, req, previewErrorHandler)
	if !ok {
		return
	}
	preview, err := cs.deps.Documents.Preview(req.Context(), path)
	if err != nil {
		previewErrorHandler.WriteAndLogError(w, "failed to preview homework", err, documentErrorStatus(err), log.Fields{"path": path})
		return
	}
	writeJSON(w, previewResponse{Success: true, Preview: preview})
}

func (cs *controlServer) sendHomeworkHandler(w http.ResponseWriter, req *http.Request) {
	path, ok := cs.resolveFilePath(w, req, sendHomeworkErrorHandler)
	if !ok {
		return
	}
	result, err := cs.deps.Documents.SendFromFile(req.Context(), path)
	if err != nil {
		sendHomeworkErrorHandler.WriteAndLogError(w, "failed to send homework", err, documentErrorStatus(err), log.Fields{"path": path})
		return
	}
	writeJSON(w, sendResponse{Success: true, SendResult: result})
}

func (cs *controlServer) sendContentHandler(w http.ResponseWriter, req *http.Request) {
	body := contentRequest{}
	if err := decodeBody(req, &body); err != nil {
		sendContentErrorHandler.WriteAndLogError(w, "failed to parse request body", err, http.StatusBadRequest, log.Fields{})
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		sendContentErrorHandler.WriteAndLogErrorMsg(w, "no content provided", http.StatusBadRequest, log.Fields{})
		return
	}
	result, err := cs.deps.Documents.SendContent(req.Context(), body.Content)
	if err != nil {
		sendContentErrorHandler.WriteAndLogError(w, "failed to send content", err, http.StatusInternalServerError, log.Fields{})
		return
	}
	writeJSON(w, sendResponse{Success: true, SendResult: result})
}

func (cs *controlServer) windowHandler(action string, fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := fn(); err != nil {
			windowErrorHandler.WriteAndLogError(
				w,
				fmt.Sprintf("failed to %s window", action),
				err,
				http.StatusInternalServerError,
				log.Fields{"action": action},
			)
			return
		}
		writeJSON(w, okResponse)
	}
}

func (cs *controlServer) exitHandler(w http.ResponseWriter, req *http.Request) {
	if cs.deps.Exit == nil {
		exitErrorHandler.WriteAndLogErrorMsg(w, "exit is not available", http.StatusServiceUnavailable, log.Fields{})
		return
	}
	log.WithField("request_id", requestID(req.Context())).Info("Exit requested over control plane")
	cs.deps.Exit()
	writeJSON(w, okResponse)
}

func (cs *controlServer) autostartStatusHandler(w http.ResponseWriter, req *http.Request) {
	status, err := cs.deps.Autostart.Status()
	if err != nil {
		autostartStatusErrorHandler.WriteAndLogError(w, "failed to read autostart status", err, http.StatusInternalServerError, log.Fields{})
		return
	}
	writeJSON(w, autostartStatusResponse{Success: true, AutostartStatus: status})
}

func (cs *controlServer) autostartApplyHandler(w http.ResponseWriter, req *http.Request) {
	patch := model.ConfigPatch{}
	if err := decodeBody(req, &patch); err != nil {
		autostartApplyErrorHandler.WriteAndLogError(w, "failed to parse request body", err, http.StatusBadRequest, log.Fields{})
		return
	}
	result, err := cs.deps.Autostart.Apply(patch)
	if err != nil {
		autostartApplyErrorHandler.WriteAndLogError(w, "failed to apply autostart", err, http.StatusInternalServerError, log.Fields{})
		return
	}
	writeJSON(w, autostartApplyResponse{Success: result.OK(), AutostartResult: result})
}

// notAPIPath keeps unknown /api/ paths on the envelope-shaped 404.
func notAPIPath(req *http.Request, _ *mux.RouteMatch) bool {
	return req.URL.Path != "/api" && !strings.HasPrefix(req.URL.Path, "/api/")
}

func optionsHandler(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func notFoundHandler(w http.ResponseWriter, req *http.Request) {
	routingErrorHandler.WriteAndLogErrorMsg(w, "not found", http.StatusNotFound, log.Fields{"path": req.URL.Path})
}

func methodNotAllowedHandler(w http.ResponseWriter, req *http.Request) {
	routingErrorHandler.WriteAndLogErrorMsg(w, "method not allowed", http.StatusMethodNotAllowed, log.Fields{
		"path":   req.URL.Path,
		"method": req.Method,
	})
}

// NewControlServer builds the control plane HTTP server. Every mutating route
// also answers an OPTIONS preflight with an empty 200.
func NewControlServer(deps Deps, addr string) (*http.Server, error) {
	if deps.Scheduler == nil || deps.Documents == nil || deps.Autostart == nil || deps.Window == nil || deps.Config == nil {
		return nil, errors.New("control server needs config, scheduler, documents, autostart and window services")
	}
	validate, err := validation.New()
	if err != nil {
		return nil, fmt.Errorf("error registering config validation: %w", err)
	}
	if addr == "" {
		addr = DefaultAddr
	}

	server := controlServer{
		deps:     deps,
		pipeline: &configPipeline{config: deps.Config, scheduler: deps.Scheduler, autostart: deps.Autostart},
		validate: validate,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/ping", server.pingHandler).Methods("GET")
	router.HandleFunc("/api/ping", optionsHandler).Methods("OPTIONS")
	router.HandleFunc("/api/config", server.getConfigHandler).Methods("GET")
	router.HandleFunc("/api/scheduler/status", server.schedulerStatusHandler).Methods("GET")
	router.HandleFunc("/api/scheduler/status/full", server.schedulerFullStatusHandler).Methods("GET")
	router.HandleFunc("/api/scheduler/history", server.schedulerHistoryHandler).Methods("GET")
	router.HandleFunc("/api/autostart/status", server.autostartStatusHandler).Methods("GET")

	post := map[string]http.HandlerFunc{
		"/api/config":           server.saveConfigHandler,
		"/api/select_ppt_file":  server.selectFileHandler,
		"/api/preview_homework": server.previewHandler,
		"/api/send_homework":    server.sendHomeworkHandler,
		"/api/send_content":     server.sendContentHandler,
		"/api/window/minimize":  server.windowHandler("minimize", deps.Window.Minimize),
		"/api/window/close":     server.windowHandler("close", deps.Window.Close),
		"/api/window/show":      server.windowHandler("show", deps.Window.Show),
		"/api/exit":             server.exitHandler,
		"/api/autostart/apply":  server.autostartApplyHandler,
	}
	for path, handler := range post {
		router.HandleFunc(path, handler).Methods("POST")
		router.HandleFunc(path, optionsHandler).Methods("OPTIONS")
	}

	if deps.UIDir != "" {
		if info, err := os.Stat(deps.UIDir); err == nil && info.IsDir() {
			router.PathPrefix("/").MatcherFunc(notAPIPath).Handler(http.FileServer(http.Dir(deps.UIDir))).Methods("GET")
		} else {
			log.WithField("dir", deps.UIDir).Warn("UI directory not found, not serving static files")
		}
	}

	router.NotFoundHandler = corsMiddleware(http.HandlerFunc(notFoundHandler))
	router.MethodNotAllowedHandler = corsMiddleware(http.HandlerFunc(methodNotAllowedHandler))
	router.Use(recoveryMiddleware, requestIDMiddleware, loggingMiddleware, corsMiddleware)
	return &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}, nil
}
