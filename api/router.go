package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/payroll_backend/middlewares"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the admin API. ready gates every route except the probes;
// pass nil when dependencies are already up.
func NewRouter(svc PayrollService, logger *logrus.Logger, ready func() bool) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig()))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewHandler(svc, logger)
	g := r.Group("/payroll")
	g.Use(func(c *gin.Context) {
		if ready != nil && !ready() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	g.Use(middlewares.AuthMiddleware(), middlewares.RequireActor())

	g.POST("/sync", h.Sync)
	g.POST("/reconcile", h.ReconcileRange)
	g.POST("/manual", h.CreateManual)
	g.GET("/source-drift", h.SourceDrift)
	g.GET("/employee/:employeeId", h.EmployeeHistory)
	g.POST("/withdrawals", h.RequestWithdrawal)
	g.GET("/withdrawals", h.ListWithdrawals)
	g.GET("/withdrawals/:wid", h.GetWithdrawal)
	g.PUT("/withdrawals/:wid/approve", h.ApproveWithdrawal)
	g.PUT("/withdrawals/:wid/reject", h.RejectWithdrawal)
	g.POST("/short-plans", h.CreateShortPlan)
	g.GET("/short-plans", h.ListShortPlans)
	g.GET("/short-plans/due/:employeeId", h.ShortDeductionDue)
	g.POST("/short-plans/:pid/installments", h.RecordShortInstallment)
	g.PUT("/short-plans/:pid/cancel", h.CancelShortPlan)
	g.GET("/:id", h.GetRecord)
	g.POST("/:id/reconcile", h.ReconcileOne)
	g.POST("/:id/adjustments", h.AppendAdjustment)
	g.PUT("/:id/approve", h.Approve)
	g.PUT("/:id/lock", h.Lock)
	g.PUT("/:id/base-salary", h.SetBaseSalary)
	g.GET("/:id/events", h.OutboxStatus)
	g.POST("/:id/events/requeue", h.RequeueEvents)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

// corsConfig requires an explicit allowlist in production and allows all
// origins elsewhere.
func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	corsConfig.AddExposeHeaders("Content-Length", middlewares.CorrelationHeader)
	return corsConfig
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
