// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rideshare/internal/http/handlers"
	"rideshare/internal/http/middleware"
)

func NewRouter(deps ServerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger), middleware.Logging(deps.Logger), middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Only the local identity provider issues credentials here; Firebase clients sign in directly.
	if deps.Accounts != nil {
		accountHandler := handlers.NewAccountHandler(deps.Accounts)
		r.POST("/api/accounts/register", accountHandler.Register)
		r.POST("/api/accounts/login", accountHandler.Login)
	}

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	rideHandler := handlers.NewRideHandler(deps.Rides, deps.Estimator, deps.Location)
	api.POST("/rides", rideHandler.Create)
	api.GET("/rides", rideHandler.List)
	api.GET("/rides/:id", rideHandler.Get)
	api.PUT("/rides/:id", rideHandler.Update)
	api.DELETE("/rides/:id", rideHandler.Delete)
	api.POST("/rides/:id/accept", rideHandler.Accept)
	api.POST("/rides/:id/confirm", rideHandler.Confirm)
	api.GET("/rides/:id/estimate", rideHandler.Estimate)

	pointsHandler := handlers.NewPointsHandler(deps.Points)
	api.GET("/points", pointsHandler.Balance)

	if deps.Feed != nil {
		feedHandler := handlers.NewFeedHandler(deps.Feed, deps.Location, deps.Logger)
		api.GET("/feed", feedHandler.Stream)
	}

	return r
}
