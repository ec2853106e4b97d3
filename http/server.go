// Package http exposes the relayer over a small JSON API.
package http

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/universalswapper/relayer"
	"github.com/universalswapper/relayer/evm"
	"github.com/universalswapper/relayer/fees"
	"github.com/universalswapper/relayer/router"
)

const (
	// IdempotencyKeyHeader lets a client retry POST /swap without a second execute
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses served from the swap cache
	ReplayedHeader = "Idempotent-Replayed"
	// RequestIDHeader is echoed back and used as the swap id
	RequestIDHeader = "X-Request-ID"

	DefaultSwapTimeout  = 3 * time.Minute
	DefaultQuoteTimeout = 30 * time.Second
)

// Swapper is the part of the orchestrator the service drives
type Swapper interface {
	Swap(ctx context.Context, req relayer.SwapRequest) (*relayer.SwapResult, error)
	Quote(ctx context.Context, req relayer.SwapRequest) (*relayer.QuoteResult, error)
}

// OwnerSigners resolves the signer for an owner address. The service never
// accepts keys over the wire; owners it can sign for are loaded at startup.
type OwnerSigners interface {
	Signer(owner string) (evm.ClientSigner, bool)
}

// StaticOwners is an OwnerSigners backed by a fixed set of signers
type StaticOwners map[string]evm.ClientSigner

// NewStaticOwners indexes signers by address
func NewStaticOwners(signers ...evm.ClientSigner) StaticOwners {
	owners := make(StaticOwners, len(signers))
	for _, s := range signers {
		owners[strings.ToLower(s.Address())] = s
	}
	return owners
}

// Signer implements OwnerSigners
func (o StaticOwners) Signer(owner string) (evm.ClientSigner, bool) {
	s, ok := o[strings.ToLower(owner)]
	return s, ok
}

// Config wires a Server
type Config struct {
	Swapper Swapper
	Owners  OwnerSigners

	// Relayer is reported by /healthz
	Relayer string
	ChainID int64

	// Metrics is mounted on /metrics when set
	Metrics http.Handler

	Queue *relayer.OwnerQueue
	Cache *relayer.SwapCache

	MaxBodyBytes int64
	SwapTimeout  time.Duration
	QuoteTimeout time.Duration
	Logger       *slog.Logger
}

// Server serves /quote, /swap, /healthz and /metrics
type Server struct {
	cfg    Config
	engine *gin.Engine
	logger *slog.Logger
}

// NewServer builds the gin engine. Queue and Cache are created when nil.
func NewServer(cfg Config) *Server {
	if cfg.Queue == nil {
		cfg.Queue = relayer.NewOwnerQueue()
	}
	if cfg.Cache == nil {
		cfg.Cache = relayer.NewSwapCache(relayer.DefaultSwapCacheTTL)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = relayer.DefaultMaxSwapRequestSize
	}
	if cfg.SwapTimeout <= 0 {
		cfg.SwapTimeout = DefaultSwapTimeout
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = DefaultQuoteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, engine: r, logger: cfg.Logger}
	r.Use(s.requestLogger())

	r.GET("/healthz", s.health)
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	r.POST("/quote", s.quote)
	r.POST("/swap", s.swap)
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("swap service listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := requestID(c.GetHeader(RequestIDHeader))
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"request_id", id,
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// requestID keeps a client-supplied ID only when it is a UUID. It becomes the
// swap ID, so anything else is replaced.
func requestID(header string) string {
	if id, err := uuid.Parse(strings.TrimSpace(header)); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"relayer": s.cfg.Relayer,
		"chainId": s.cfg.ChainID,
		"swaps":   s.cfg.Cache.Len(),
	})
}

func (s *Server) quote(c *gin.Context) {
	req, ok := s.bindSwapRequest(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.QuoteTimeout)
	defer cancel()

	result, err := s.cfg.Swapper.Quote(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) swap(c *gin.Context) {
	req, ok := s.bindSwapRequest(c)
	if !ok {
		return
	}
	owner := req.Owner.Address()

	// Detach from the client: once submitted, the swap must be followed to its receipt
	// even if the caller disconnects.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.cfg.SwapTimeout)
	defer cancel()

	idempotencyKey := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if idempotencyKey == "" {
		result, err := s.runSwap(ctx, req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	key := relayer.GenerateSwapKey(owner, idempotencyKey)
	status, cached, done := s.cfg.Cache.CheckAndMark(key, relayer.SwapFingerprint(req))
	switch status {
	case relayer.StatusConflict:
		c.JSON(http.StatusUnprocessableEntity, errorBody{
			Error:   "idempotency_key_reused",
			Message: "this idempotency key was already used for a different swap",
		})
		return
	case relayer.StatusCached:
		c.Header(ReplayedHeader, "true")
		c.JSON(http.StatusOK, cached)
		return
	case relayer.StatusInFlight:
		result, err := s.cfg.Cache.WaitForResult(c.Request.Context(), key, done)
		if err != nil {
			writeError(c, err)
			return
		}
		if result == nil {
			c.JSON(http.StatusConflict, errorBody{
				Error:   "swap_retry",
				Message: "the original attempt with this idempotency key failed; retry the request",
			})
			return
		}
		c.Header(ReplayedHeader, "true")
		c.JSON(http.StatusOK, result)
		return
	}

	result, err := s.runSwap(ctx, req)
	if err != nil {
		s.cfg.Cache.Fail(key, done)
		writeError(c, err)
		return
	}
	s.cfg.Cache.Complete(key, result, done)
	c.JSON(http.StatusOK, result)
}

func (s *Server) runSwap(ctx context.Context, req relayer.SwapRequest) (*relayer.SwapResult, error) {
	var result *relayer.SwapResult
	err := s.cfg.Queue.Do(ctx, req.Owner.Address(), func(ctx context.Context) error {
		var err error
		result, err = s.cfg.Swapper.Swap(ctx, req)
		return err
	})
	return result, err
}

// swapRequestBody is the JSON body of /quote and /swap. Amounts are base-10
// strings in the token's smallest unit.
type swapRequestBody struct {
	Owner         string    `json:"owner" binding:"required"`
	TokenIn       string    `json:"tokenIn" binding:"required"`
	TokenOut      string    `json:"tokenOut" binding:"required"`
	AmountIn      string    `json:"amountIn" binding:"required"`
	AmountOutMin  string    `json:"amountOutMin"`
	Hops          []hopBody `json:"hops"`
	QuotingMethod string    `json:"quotingMethod"`
}

type hopBody struct {
	Fee   uint32 `json:"fee" binding:"required"`
	Token string `json:"token" binding:"required"`
}

func (s *Server) bindSwapRequest(c *gin.Context) (relayer.SwapRequest, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)

	var body swapRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: relayer.ErrCodeInvalidRequest, Message: "invalid request body: " + err.Error()})
		return relayer.SwapRequest{}, false
	}

	amountIn, ok := parseAmount(body.AmountIn)
	if !ok {
		writeError(c, &relayer.RequestError{Field: "amountIn", Message: "must be a base-10 integer"})
		return relayer.SwapRequest{}, false
	}
	amountOutMin := big.NewInt(0)
	if body.AmountOutMin != "" {
		if amountOutMin, ok = parseAmount(body.AmountOutMin); !ok {
			writeError(c, &relayer.RequestError{Field: "amountOutMin", Message: "must be a base-10 integer"})
			return relayer.SwapRequest{}, false
		}
	}

	signer, ok := s.cfg.Owners.Signer(body.Owner)
	if !ok {
		c.JSON(http.StatusForbidden, errorBody{Error: "unknown_owner", Message: "no signer is configured for " + body.Owner})
		return relayer.SwapRequest{}, false
	}

	var hops []router.Hop
	for _, h := range body.Hops {
		hops = append(hops, router.Hop{Fee: h.Fee, Token: h.Token})
	}

	id, _ := c.Get("request_id")
	idStr, _ := id.(string)
	return relayer.SwapRequest{
		ID:            idStr,
		Owner:         signer,
		TokenIn:       body.TokenIn,
		TokenOut:      body.TokenOut,
		AmountIn:      amountIn,
		AmountOutMin:  amountOutMin,
		Hops:          hops,
		QuotingMethod: fees.QuotingMethod(body.QuotingMethod),
	}, true
}

func parseAmount(raw string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, false
	}
	return v, true
}
