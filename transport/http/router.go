package http

import (
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mirror520/chatroom"
)

func NewRouter(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(log, true))
	return r
}

func SetRouter(r *gin.Engine, endpoints *chatroom.EndpointSet, healthPath string) {
	if healthPath == "" {
		healthPath = "/health"
	}
	r.GET(healthPath, CheckHealthHandler)

	apiV1 := r.Group("/v1")
	{
		apiV1.GET("/topics", TopicsHandler(endpoints.Topics))
		apiV1.POST("/topics", AddTopicHandler(endpoints.AddTopic))
		apiV1.DELETE("/topics/:name", RemoveTopicHandler(endpoints.RemoveTopic))
		apiV1.POST("/topics/:name/messages", PublishHandler(endpoints.Publish))

		apiV1.POST("/broadcast", BroadcastHandler(endpoints.Broadcast))
		apiV1.POST("/system", SystemHandler(endpoints.System))

		apiV1.GET("/stats", StatsHandler(endpoints.Stats))
	}

	subscribers := apiV1.Group("/subscribers")
	{
		subscribers.POST("", ConnectHandler(endpoints.Connect))
		subscribers.DELETE("/:id", DisconnectHandler(endpoints.Disconnect))
		subscribers.GET("/:id/filters", FiltersHandler(endpoints.Filters))
		subscribers.PUT("/:id/filters", SubscribeAllHandler(endpoints.SubscribeAll))
		subscribers.PUT("/:id/filters/*filter", FilterHandler(endpoints.Subscribe, "subscribed"))
		subscribers.DELETE("/:id/filters/*filter", FilterHandler(endpoints.Unsubscribe, "unsubscribed"))
		subscribers.GET("/:id/messages", PollHandler(endpoints.Poll))
	}
}
