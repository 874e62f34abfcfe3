package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/kit/endpoint"

	"github.com/mirror520/chatroom"
	"github.com/mirror520/chatroom/broker"
	"github.com/mirror520/chatroom/model"
	"github.com/mirror520/chatroom/topic"
)

const maxPollTimeout = 30 * time.Second

func PublishHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req chatroom.PublishRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(http.StatusBadRequest, result)
			return
		}
		req.Topic = ctx.Param("name")

		resp, err := endpoint(ctx, req)
		if err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(statusCode(err), result)
			return
		}

		result := model.SuccessResult("message published")
		result.Data = resp
		ctx.JSON(http.StatusOK, result)
	}
}

func BroadcastHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req chatroom.BroadcastRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(http.StatusBadRequest, result)
			return
		}

		resp, err := endpoint(ctx, req)
		if err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(statusCode(err), result)
			return
		}

		result := model.SuccessResult("message broadcast")
		result.Data = resp
		ctx.JSON(http.StatusOK, result)
	}
}

func SystemHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req chatroom.SystemRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(http.StatusBadRequest, result)
			return
		}

		resp, err := endpoint(ctx, req)
		if err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(statusCode(err), result)
			return
		}

		result := model.SuccessResult("system message published")
		result.Data = resp
		ctx.JSON(http.StatusOK, result)
	}
}

func ConnectHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req chatroom.ConnectRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(http.StatusBadRequest, result)
			return
		}

		resp, err := endpoint(ctx, req)
		if err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(statusCode(err), result)
			return
		}

		result := model.SuccessResult("subscriber connected")
		result.Data = resp
		ctx.JSON(http.StatusCreated, result)
	}
}

func DisconnectHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := subscriberID(ctx)
		if !ok {
			return
		}

		if _, err := endpoint(ctx, id); err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(statusCode(err), result)
			return
		}

		result := model.SuccessResult("subscriber disconnected")
		ctx.JSON(http.StatusOK, result)
	}
}

func FiltersHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := subscriberID(ctx)
		if !ok {
			return
		}

		resp, err := endpoint(ctx, id)
		if err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(statusCode(err), result)
			return
		}

		result := model.SuccessResult("filters listed")
		result.Data = resp
		ctx.JSON(http.StatusOK, result)
	}
}

func SubscribeAllHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := subscriberID(ctx)
		if !ok {
			return
		}

		resp, err := endpoint(ctx, id)
		if err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(statusCode(err), result)
			return
		}

		result := model.SuccessResult("subscribed to all topics")
		result.Data = resp
		ctx.JSON(http.StatusOK, result)
	}
}

// FilterHandler serves both subscribe and unsubscribe. The filter is the
// wildcard path segment; an empty one selects every topic.
func FilterHandler(endpoint endpoint.Endpoint, msg string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := subscriberID(ctx)
		if !ok {
			return
		}

		req := chatroom.FilterRequest{
			ID:     id,
			Filter: strings.TrimPrefix(ctx.Param("filter"), "/"),
		}

		resp, err := endpoint(ctx, req)
		if err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(statusCode(err), result)
			return
		}

		result := model.SuccessResult(msg)
		result.Data = resp
		ctx.JSON(http.StatusOK, result)
	}
}

// PollHandler waits up to ?timeout= (default 1s) and answers 204 when no
// message arrived.
func PollHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := subscriberID(ctx)
		if !ok {
			return
		}

		timeout := time.Second
		if raw := ctx.Query("timeout"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				result := model.FailureResult(err)
				ctx.AbortWithStatusJSON(http.StatusBadRequest, result)
				return
			}

			timeout = min(d, maxPollTimeout)
		}

		req := chatroom.PollRequest{
			ID:      id,
			Timeout: timeout,
		}

		resp, err := endpoint(ctx.Request.Context(), req)
		if err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(statusCode(err), result)
			return
		}

		if resp == nil {
			ctx.Status(http.StatusNoContent)
			return
		}

		result := model.SuccessResult("message received")
		result.Data = resp
		ctx.JSON(http.StatusOK, result)
	}
}

func TopicsHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		resp, err := endpoint(ctx, nil)
		if err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(statusCode(err), result)
			return
		}

		result := model.SuccessResult("topics listed")
		result.Data = resp
		ctx.JSON(http.StatusOK, result)
	}
}

func AddTopicHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req chatroom.AddTopicRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(http.StatusBadRequest, result)
			return
		}

		resp, err := endpoint(ctx, req)
		if err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(statusCode(err), result)
			return
		}

		result := model.SuccessResult("topic added")
		result.Data = resp
		ctx.JSON(http.StatusCreated, result)
	}
}

func RemoveTopicHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if _, err := endpoint(ctx, ctx.Param("name")); err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(statusCode(err), result)
			return
		}

		result := model.SuccessResult("topic removed")
		ctx.JSON(http.StatusOK, result)
	}
}

func StatsHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		resp, err := endpoint(ctx, nil)
		if err != nil {
			result := model.FailureResult(err)
			ctx.AbortWithStatusJSON(statusCode(err), result)
			return
		}

		result := model.SuccessResult("stats")
		result.Data = resp
		ctx.JSON(http.StatusOK, result)
	}
}

func CheckHealthHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, "ok")
}

func subscriberID(ctx *gin.Context) (broker.SubscriberID, bool) {
	id, err := broker.ParseSubscriberID(ctx.Param("id"))
	if err != nil {
		result := model.FailureResult(err)
		ctx.AbortWithStatusJSON(http.StatusBadRequest, result)
		return broker.SubscriberID{}, false
	}
	return id, true
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, broker.ErrSubscriberNotFound),
		errors.Is(err, topic.ErrTopicNotFound):
		return http.StatusNotFound

	case errors.Is(err, broker.ErrSubscriberClosed),
		errors.Is(err, broker.ErrEngineClosed):
		return http.StatusGone

	case errors.Is(err, topic.ErrInvalidName),
		errors.Is(err, chatroom.ErrInvalidRequest):
		return http.StatusBadRequest

	case errors.Is(err, chatroom.ErrReservedTopic):
		return http.StatusForbidden

	default:
		return http.StatusExpectationFailed
	}
}
