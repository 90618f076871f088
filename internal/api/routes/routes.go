package routes

import (
	"net/http"
	"time"

	_ "dm-chat-service/docs"
	"dm-chat-service/internal/api/handlers"
	"dm-chat-service/internal/api/middleware"
	"dm-chat-service/internal/auth"
	"dm-chat-service/internal/websocket"
	"dm-chat-service/pkg/logger"
	"dm-chat-service/pkg/response"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Dependencies wires the HTTP surface. Limiter may be nil.
type Dependencies struct {
	Hub            *websocket.Hub
	Verifier       auth.TokenVerifier
	Directory      handlers.UserDirectory
	Chat           handlers.MessageHistory
	Limiter        middleware.RateLimiter
	AllowedOrigins []string
	Logger         *logger.Logger
}

type Router struct {
	engine      *gin.Engine
	wsHandler   *handlers.WSHandler
	userHandler *handlers.UserHandler
	chatHandler *handlers.ChatHandler
	rateLimitMW *middleware.RateLimitMiddleware
	authMW      *middleware.AuthMiddleware
}

func NewRouter(deps Dependencies) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.Recovery(deps.Logger))
	engine.Use(middleware.CORS(deps.AllowedOrigins))
	engine.Use(middleware.LogApi(deps.Logger))

	return &Router{
		engine:      engine,
		wsHandler:   handlers.NewWSHandler(deps.Hub),
		userHandler: handlers.NewUserHandler(deps.Directory, deps.Logger),
		chatHandler: handlers.NewChatHandler(deps.Chat, deps.Logger),
		rateLimitMW: middleware.NewRateLimitMiddleware(deps.Limiter, deps.Logger),
		authMW:      middleware.NewAuthMiddleware(deps.Verifier, deps.Logger),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// The socket authenticates itself during the handshake
	r.engine.GET("/ws",
		r.rateLimitMW.RateLimitIP(30, time.Minute),
		r.wsHandler.HandleWebSocket,
	)

	api := r.engine.Group("/api")
	api.Use(r.authMW.RequireAuth())
	{
		users := api.Group("/users")
		users.Use(r.rateLimitMW.RateLimit(100, time.Minute))
		{
			users.GET("", r.userHandler.ListUsers)
			users.GET("/profile", r.userHandler.GetProfile)
		}

		rooms := api.Group("/rooms")
		rooms.Use(r.rateLimitMW.RateLimit(200, time.Minute))
		{
			rooms.GET("/with/:peerId", r.chatHandler.GetRoomWith)
			rooms.GET("/:roomId/messages", r.chatHandler.GetRoomMessages)
		}
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": response.Msg(response.ErrCodeNotFound)})
	})
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
