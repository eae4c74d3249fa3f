package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"jan-server/services/query-tools/internal/domain/store"
	"jan-server/services/query-tools/internal/infrastructure/metrics"
)

const (
	storeOK      = "ok"
	storeError   = "error"
	storeSkipped = "skipped"
)

// HealthResponse separates process liveness from backing store reachability.
type HealthResponse struct {
	Status               string `json:"status"`
	Service              string `json:"service"`
	BackingStoreStatus   string `json:"backing_store_status"`
	BackingStoreIdentity string `json:"backing_store_identity"`
	BackingStoreError    string `json:"backing_store_error,omitempty"`
}

type HealthRoute struct {
	prober  store.Prober
	timeout time.Duration
}

func NewHealthRoute(prober store.Prober, timeout time.Duration) *HealthRoute {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthRoute{prober: prober, timeout: timeout}
}

func (route *HealthRoute) RegisterRouter(router gin.IRouter) {
	router.GET("/healthz", route.healthz)
	router.GET("/readyz", route.readyz)
}

// healthz always answers 200 while the process serves requests. The store
// round-trip is skipped with ?store=false.
func (route *HealthRoute) healthz(reqCtx *gin.Context) {
	resp := HealthResponse{Status: "ok", Service: "query-tools", BackingStoreIdentity: route.prober.Identity()}
	if reqCtx.Query("store") == "false" {
		resp.BackingStoreStatus = storeSkipped
		reqCtx.JSON(http.StatusOK, resp)
		return
	}

	if err := route.ping(reqCtx.Request.Context()); err != nil {
		resp.BackingStoreStatus = storeError
		resp.BackingStoreError = err.Error()
	} else {
		resp.BackingStoreStatus = storeOK
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *HealthRoute) readyz(reqCtx *gin.Context) {
	resp := HealthResponse{Status: "ready", Service: "query-tools", BackingStoreIdentity: route.prober.Identity(), BackingStoreStatus: storeOK}
	if err := route.ping(reqCtx.Request.Context()); err != nil {
		resp.Status = "unavailable"
		resp.BackingStoreStatus = storeError
		resp.BackingStoreError = err.Error()
		reqCtx.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *HealthRoute) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, route.timeout)
	defer cancel()
	err := route.prober.Ping(ctx)
	metrics.SetBackingStoreUp(err == nil)
	return err
}
