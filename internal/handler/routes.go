package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	customMiddleware "mangwale-chat/internal/middleware"
	"mangwale-chat/internal/service"
	"mangwale-chat/internal/ws"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

type ServerOptions struct {
	AllowOrigins []string

	RateLimitPerSecond int
	RateLimitBurst     int
	RateLimitWindow    time.Duration
}

// NewServer builds the relay: the realtime socket on /ws and the polling REST
// surface under /chat and /sessions.
func NewServer(opts ServerOptions, hub *ws.Hub, chat *service.ChatService) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	allowOrigins := make([]string, 0, len(opts.AllowOrigins))
	for _, o := range opts.AllowOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowOrigins = append(allowOrigins, o)
		}
	}
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{
			echo.GET,
			echo.POST,
			echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
	}))

	if opts.RateLimitPerSecond > 0 {
		window := opts.RateLimitWindow
		if window <= 0 {
			window = 3 * time.Minute
		}
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			// websocket frames are not HTTP requests; only the upgrade counts
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(
				middleware.RateLimiterMemoryStoreConfig{
					Rate:      rate.Limit(opts.RateLimitPerSecond),
					Burst:     opts.RateLimitBurst,
					ExpiresIn: window,
				},
			),
		}))
	}

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		message := "Internal Server Error"

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			message = fmt.Sprintf("%v", he.Message)
		}
		response := map[string]interface{}{
			"success": false,
			"error":   message,
		}
		switch code {
		case http.StatusMethodNotAllowed:
			response["message"] = "Method not allowed for this endpoint"
		case http.StatusNotFound:
			response["message"] = "Endpoint not found"
		case http.StatusTooManyRequests:
			response["message"] = "Too many requests, slow down"
		}

		if !c.Response().Committed {
			_ = c.JSON(code, response)
		}
	}

	e.GET("/", func(c echo.Context) error { // Health check
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Mangwale chat relay is running",
			"version": "1.0.0",
		})
	})
	e.GET("/ws", WebSocketHandler(hub, chat))

	chatHandler := NewChatHandler(chat)
	identity := customMiddleware.OptionalJWT()
	e.POST("/chat/send", chatHandler.SendChat, identity)
	e.GET("/chat/messages/:recipientId", chatHandler.GetMessages)
	e.GET("/sessions/:id", chatHandler.GetSession)
	e.GET("/sessions/:id/history", chatHandler.GetHistory)
	e.POST("/sessions/:id/location", chatHandler.UpdateLocation)
	e.POST("/sessions/:id/option", chatHandler.OptionClick)

	return e
}
