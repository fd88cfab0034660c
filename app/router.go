// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"time"

	"github.com/mmayman666/Otouri-app-final-sub001/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the shared HTTP router for both local and Lambda execution.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(s.log), prometheusMiddleware())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders: []string{"X-Remaining-Credits", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(s.cfg.HTTP.CORSOrigins) == 0 || (len(s.cfg.HTTP.CORSOrigins) == 1 && s.cfg.HTTP.CORSOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.HTTP.CORSOrigins
	}
	router.Use(cors.New(corsCfg))

	router.GET("/health", Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/api/webhooks/stripe", s.StripeWebhook)

	api := router.Group("/api")
	api.Use(auth.Middleware(s.verifier, auth.MiddlewareConfig{
		DisableAuth:     s.cfg.Auth.Disabled,
		OnAuthenticated: s.upsertProfileFromClaims,
	}))
	api.GET("/me", s.Me)
	api.GET("/usage", s.Usage)
	api.GET("/dashboard", s.Dashboard)

	api.POST("/ai-chat", s.AIChat)
	api.POST("/image-analysis", s.ImageAnalysis)

	api.GET("/notifications", s.ListNotifications)
	api.GET("/notifications/unread-count", s.UnreadNotificationCount)
	api.POST("/notifications/:id/read", s.MarkNotificationRead)
	api.POST("/notifications/read-all", s.MarkAllNotificationsRead)
	api.POST("/notifications/populate", s.PopulateNotifications)

	api.GET("/favorites", s.ListFavorites)
	api.POST("/favorites", s.AddFavorite)
	api.DELETE("/favorites/:id", s.RemoveFavorite)
	api.GET("/chat-history", s.ListChatHistory)
	api.GET("/image-searches", s.ListImageSearches)

	api.GET("/subscription", s.GetSubscription)
	api.POST("/billing/checkout", s.CreateCheckoutSession)
	api.POST("/billing/portal", s.CreatePortalSession)

	admin := api.Group("/admin")
	admin.Use(s.RequireAdmin())
	admin.GET("/stats", s.AdminStats)
	admin.GET("/users", s.AdminUsers)
	admin.GET("/users/export", s.AdminExportUsers)
	admin.GET("/subscriptions", s.AdminSubscriptions)

	return router
}
