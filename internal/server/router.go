package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modqueue/modq/internal/engine"
	"github.com/modqueue/modq/internal/metrics"
	"github.com/modqueue/modq/internal/record"
	"github.com/modqueue/modq/internal/snapshot"
	"github.com/modqueue/modq/internal/store"
)

// Router provides embeddable HTTP handlers for the approval queue.
// Endpoints:
//
//	GET  {basePath}/pending   current snapshot
//	POST {basePath}/decide    body: {"ref": "...", "verdict": "approve"|"reject"}
//	POST {basePath}/poll      trigger an immediate poll cycle
//	GET  {basePath}/healthz   store reachability
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	eng      *engine.Engine
	st       store.Adapter
	basePath string
}

func NewRouter(eng *engine.Engine, st store.Adapter, basePath string) *Router {
	return &Router{eng: eng, st: st, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux. /metrics is served outside basePath.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/pending", r.handlePending)
	group.POST("/decide", r.handleDecide)
	group.POST("/poll", r.handlePoll)
	group.GET("/healthz", r.handleHealthz)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, eng *engine.Engine, st store.Adapter) (*http.Server, error) {
	r := NewRouter(eng, st, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type pendingItem struct {
	Ref       string `json:"ref"`
	Key       string `json:"key"`
	Content   string `json:"content"`
	Platform  string `json:"platform"`
	Scheduled string `json:"scheduled"`
}

type pendingResp struct {
	Gen        uint64        `json:"gen"`
	Taken      time.Time     `json:"taken"`
	Pending    []pendingItem `json:"pending"`
	Duplicates int           `json:"duplicates"`
	Prompted   int           `json:"prompted"`
}

type decideReq struct {
	Ref     string `json:"ref"`
	Verdict string `json:"verdict"`
}

type decideResp struct {
	Ref      string `json:"ref"`
	Key      string `json:"key"`
	Verdict  string `json:"verdict"`
	Platform string `json:"platform"`
}

func (r *Router) handlePending(c *gin.Context) {
	snap := r.eng.Snapshot()
	if snap == nil {
		c.JSON(http.StatusOK, pendingResp{Pending: []pendingItem{}})
		return
	}
	resp := pendingResp{
		Gen:        snap.Gen(),
		Taken:      snap.Taken(),
		Pending:    make([]pendingItem, 0, snap.Len()),
		Duplicates: len(snap.Duplicates()),
		Prompted:   r.eng.PromptedCount(),
	}
	for _, e := range snap.Entries() {
		resp.Pending = append(resp.Pending, pendingItem{
			Ref:       e.Ref.String(),
			Key:       string(e.Key),
			Content:   e.Rec.Content,
			Platform:  e.Rec.Platform,
			Scheduled: e.Rec.ScheduledAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleDecide(c *gin.Context) {
	var req decideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	ref, err := snapshot.ParseRef(req.Ref)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	v := record.Verdict(req.Verdict)
	if _, ok := v.Status(); !ok {
		c.JSON(http.StatusBadRequest, errorResp{Error: "verdict must be approve or reject"})
		return
	}

	entry, err := r.eng.Decide(c.Request.Context(), ref, v)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, decideResp{
			Ref:      req.Ref,
			Key:      string(entry.Key),
			Verdict:  req.Verdict,
			Platform: entry.Rec.Platform,
		})
	case errors.Is(err, engine.ErrStaleReference):
		c.JSON(http.StatusGone, errorResp{Error: err.Error()})
	case errors.Is(err, engine.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, errorResp{Error: err.Error()})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func (r *Router) handlePoll(c *gin.Context) {
	if err := r.eng.Cycle(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: err.Error()})
		return
	}
	r.handlePending(c)
}

func (r *Router) handleHealthz(c *gin.Context) {
	if err := r.st.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func sanitizeBase(basePath string) string {
	bp := strings.TrimSpace(basePath)
	if bp == "" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimSuffix(bp, "/")
}
