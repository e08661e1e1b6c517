// Package httpapi implements the dispatch core's inbound REST surface
// (spec §6), grounded on the teacher's cmd/realtime/main.go gin wiring:
// the same middleware stack, the same health/readiness/metrics endpoints,
// re-expressed over the dispatch core's own handlers.
package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raahi/dispatch-core/pkg/middleware"
)

// Dependencies bundles every handler the router wires routes to.
type Dependencies struct {
	Rides  *RidesHandler
	SSE    *SSEHandler
	Binary *BinaryHandler
	Socket *SocketHandler

	InternalSharedSecret string
	RequestTimeout       time.Duration
	CORSOrigins          []string

	ReadyChecks map[string]func() error
}

// NewRouter builds the gin engine with the teacher's middleware stack
// (correlation id, request logging, recovery, sanitisation, CORS) plus the
// dispatch core's route table.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RecoveryWithSentry())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestTimeout(deps.RequestTimeout))
	router.Use(middleware.RequestLogger("dispatch-core"))
	router.Use(middleware.SanitizeRequest())
	router.Use(middleware.ErrorHandler())

	corsConfig := cors.DefaultConfig()
	if len(deps.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = deps.CORSOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", headerSharedSecret, headerPassengerID, headerDriverID}
	router.Use(cors.New(corsConfig))

	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "alive", "service": "dispatch-core"})
	})
	router.GET("/health/ready", func(c *gin.Context) {
		for name, check := range deps.ReadyChecks {
			if err := check(); err != nil {
				c.JSON(503, gin.H{"status": "not ready", "failed_check": name, "error": err.Error()})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ready", "service": "dispatch-core"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/", requireSharedSecret(deps.InternalSharedSecret))
	{
		rides := api.Group("/rides")
		rides.POST("", requirePassenger(), deps.Rides.CreateRide)
		rides.POST("/:id/accept", requireDriver(), deps.Rides.AcceptRide)
		rides.POST("/:id/start", requireDriver(), deps.Rides.StartRide)
		rides.PUT("/:id/status", requireEitherParty(), deps.Rides.UpdateStatus)
		rides.POST("/:id/cancel", requireEitherParty(), deps.Rides.CancelRide)
		rides.POST("/:id/track", requireDriver(), deps.Rides.TrackRide)
		rides.GET("/:id", requireEitherParty(), deps.Rides.GetRide)
		rides.GET("/available", requireDriver(), deps.Rides.AvailableRides)

		sseGroup := api.Group("/sse")
		sseGroup.GET("/ride/:id", requireEitherParty(), deps.SSE.RideStream)
		sseGroup.GET("/driver/:id", requireDriver(), deps.SSE.DriverStream)
		sseGroup.PATCH("/driver/:id/location", requireDriver(), deps.SSE.UpdateDriverSubscription)

		api.POST("/location/binary", requireDriver(), deps.Binary.SubmitLocation)
		api.GET("/socket", requireEitherParty(), deps.Socket.Connect)
	}

	return router
}
