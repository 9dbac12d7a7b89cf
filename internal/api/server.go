package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "TxRelay-Chain/internal/errors"
	"TxRelay-Chain/internal/observability/metrics"
	"TxRelay-Chain/internal/tx"
	"TxRelay-Chain/internal/web3"
)

// ChainLister 提供链快照查询能力，由 provider.Registry 实现。
type ChainLister interface {
	Snapshots(ctx context.Context) []web3.ChainSnapshot
}

// Server 负责暴露 REST 接口，供外部创建与查询交易提交。
type Server struct {
	addr      string
	service   *tx.Service
	chains    ChainLister
	authToken string
}

// ServerOption 定义可选配置。
type ServerOption func(*Server)

// WithChainLister 挂载链快照查询。
func WithChainLister(lister ChainLister) ServerOption {
	return func(s *Server) {
		s.chains = lister
	}
}

// WithAuthToken 启用静态 Bearer Token 校验。空串表示不校验。
func WithAuthToken(token string) ServerOption {
	return func(s *Server) {
		s.authToken = token
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, service *tx.Service, opts ...ServerOption) *Server {
	s := &Server{addr: addr, service: service}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回完整的路由，测试可直接挂到 httptest.Server。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/transactions", s.instrument("transactions", s.handleTransactions))
	mux.HandleFunc("/api/v1/transactions/", s.instrument("transaction", s.handleTransaction))
	mux.HandleFunc("/api/v1/stats", s.instrument("stats", s.handleStats))
	mux.HandleFunc("/api/v1/chains", s.instrument("chains", s.handleChains))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreate(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleCreate 处理创建交易提交的请求。
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		http.Error(w, "提交服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req tx.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	sub, err := s.service.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, sub)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		http.Error(w, "提交服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts := listOptionsFromQuery(r)
	results, err := s.service.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []*tx.Submission{}
	}
	writeJSON(w, http.StatusOK, results)
}

// handleTransaction 处理单个提交的查询。路径形如 /api/v1/transactions/{id}，
// 带 wait 参数时阻塞直到提交进入终态或超时。
func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.service == nil {
		http.Error(w, "提交服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/transactions/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "非法的提交 ID", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if raw := r.URL.Query().Get("wait"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			http.Error(w, "非法的 wait 参数", http.StatusBadRequest)
			return
		}
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		sub, err := s.service.WaitUntilCompleted(waitCtx, id, 0)
		if err != nil {
			if stdErrors.Is(err, context.DeadlineExceeded) {
				// 超时返回当前状态。
				sub, err = s.service.Get(ctx, id)
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, sub)
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
		return
	}

	sub, err := s.service.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.service == nil {
		http.Error(w, "提交服务未初始化", http.StatusServiceUnavailable)
		return
	}

	stats, err := s.service.Stats(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.chains == nil {
		http.Error(w, "链注册表未初始化", http.StatusServiceUnavailable)
		return
	}
	snapshots := s.chains.Snapshots(r.Context())
	if snapshots == nil {
		snapshots = []web3.ChainSnapshot{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func listOptionsFromQuery(r *http.Request) []tx.ListOption {
	var opts []tx.ListOption
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, tx.WithLimit(parsed))
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, tx.WithOffset(parsed))
		}
	}
	if raw := query.Get("status"); raw != "" {
		var statuses []tx.Status
		for _, value := range strings.Split(raw, ",") {
			statuses = append(statuses, tx.Status(strings.TrimSpace(value)))
		}
		opts = append(opts, tx.WithStatuses(statuses...))
	}
	if kind := query.Get("kind"); kind != "" {
		opts = append(opts, tx.WithKind(kind))
	}
	if chain := query.Get("chain"); chain != "" {
		opts = append(opts, tx.WithChain(chain))
	}
	return opts
}

// writeError 将带错误码的 error 映射为 HTTP 状态码。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case tx.CodeSubmissionValidation, xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case tx.CodeSubmissionNotFound, xerrors.CodeNotFound:
		status = http.StatusNotFound
	case tx.CodeSubmissionConflict, xerrors.CodeConflict:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(xerrors.CodeOf(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
