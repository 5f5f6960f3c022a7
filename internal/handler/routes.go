package handler

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes монтирует REST-поверхность чата. write - middleware для мутаций (лимит запросов).
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup, write ...gin.HandlerFunc) {
	mutate := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, write...), handler)
	}

	messages := api.Group("/messages")
	{
		messages.GET("", h.Message.List)
		messages.POST("", mutate(h.Message.Create)...)
		messages.DELETE("", mutate(h.Message.Purge)...)
		messages.POST("/reactions", mutate(h.Message.React)...)
		messages.PATCH("/:id", mutate(h.Message.Edit)...)
		messages.DELETE("/:id", mutate(h.Message.SoftDelete)...)
	}

	users := api.Group("/users")
	{
		users.GET("", h.User.List)
		users.POST("", h.User.Touch)
		users.DELETE("", h.User.Leave)
	}

	api.GET("/typing", h.Typing.List)
	api.POST("/typing", h.Typing.Set)

	api.GET("/rooms", h.Room.List)
	api.POST("/rooms", mutate(h.Room.Create)...)

	api.GET("/dm", h.DM.List)
	api.POST("/dm", mutate(h.DM.Create)...)

	api.POST("/moderation", mutate(h.Moderation.Apply)...)

	video := api.Group("/video")
	{
		video.GET("/call", h.Call.Active)
		video.POST("/call", mutate(h.Call.Start)...)
		video.PATCH("/call", h.Call.Update)
		video.POST("/token", mutate(h.Media.GetToken)...)
	}

	api.GET("/events", h.Events.Since)
}
