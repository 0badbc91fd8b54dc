package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sagelearn/sage-voice/domain/entities"
	"github.com/sagelearn/sage-voice/domain/repositories"
	"github.com/sagelearn/sage-voice/usecase"
)

// Deps bundles the services the HTTP surface exposes. TextQuerier is the
// external text-modality collaborator and may be nil when the hosting
// dashboard does not bind one.
type Deps struct {
	Session      *usecase.VoiceSessionService
	Playback     *usecase.PlaybackService
	History      *usecase.HistoryService
	Conversation *usecase.ConversationService
	TextQuerier  repositories.TextQuerier
	Logger       *zap.Logger
}

// InitRoutes registers the dashboard-facing API
func InitRoutes(e *echo.Echo, deps Deps) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "sage-voice",
		})
	})

	v1 := e.Group("/api")

	v1.POST("/session/start", func(c echo.Context) error { return startSession(c, deps) })
	v1.POST("/session/stop", func(c echo.Context) error { return stopSession(c, deps) })
	v1.GET("/session", func(c echo.Context) error { return getSession(c, deps) })

	v1.GET("/history", func(c echo.Context) error { return getHistory(c, deps) })
	v1.GET("/history/stats", func(c echo.Context) error { return getHistoryStats(c, deps) })

	v1.POST("/tts/speak", func(c echo.Context) error { return speak(c, deps) })
	v1.PUT("/tts/autospeak", func(c echo.Context) error { return setAutoSpeak(c, deps) })
	v1.GET("/tts/autospeak", func(c echo.Context) error { return getAutoSpeak(c, deps) })

	v1.GET("/conversation", func(c echo.Context) error { return getConversation(c, deps) })
	v1.POST("/query/text", func(c echo.Context) error { return textQuery(c, deps) })
}

func startSession(c echo.Context, deps Deps) error {
	// The session outlives this request; the dial must not die with it.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := deps.Session.Start(ctx); err != nil {
		if errors.Is(err, usecase.ErrSessionActive) {
			return c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "session_active",
				Message: "A voice session is already in progress",
			})
		}
		deps.Logger.Error("Failed to start voice session", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "start_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusAccepted, snapshotResponse(deps))
}

func stopSession(c echo.Context, deps Deps) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := deps.Session.Stop(ctx); err != nil {
		deps.Logger.Error("Failed to stop voice session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "stop_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, snapshotResponse(deps))
}

func getSession(c echo.Context, deps Deps) error {
	return c.JSON(http.StatusOK, snapshotResponse(deps))
}

func snapshotResponse(deps Deps) SessionResponse {
	snap := deps.Session.Snapshot()
	return SessionResponse{
		State:      snap.State,
		ChunkCount: snap.ChunkCount,
		Transcript: snap.Transcript,
		Answer:     snap.Answer,
		StartedAt:  snap.StartedAt,
	}
}

func getHistory(c echo.Context, deps Deps) error {
	return c.JSON(http.StatusOK, deps.History.All())
}

func getHistoryStats(c echo.Context, deps Deps) error {
	counts := deps.History.CountByModality()
	return c.JSON(http.StatusOK, HistoryStatsResponse{
		Voice: counts[entities.ModalityVoice],
		Text:  counts[entities.ModalityText],
		Image: counts[entities.ModalityImage],
	})
}

func speak(c echo.Context, deps Deps) error {
	var req SpeakRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_text",
			Message: "Text is required",
		})
	}

	deps.Playback.Speak(req.Text)
	return c.JSON(http.StatusAccepted, AutoSpeakResponse{
		Enabled: deps.Playback.AutoSpeak(),
		Status:  string(deps.Playback.Status()),
	})
}

func setAutoSpeak(c echo.Context, deps Deps) error {
	var req AutoSpeakRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	deps.Playback.SetAutoSpeak(req.Enabled)
	return c.JSON(http.StatusOK, AutoSpeakResponse{
		Enabled: deps.Playback.AutoSpeak(),
		Status:  string(deps.Playback.Status()),
	})
}

func getAutoSpeak(c echo.Context, deps Deps) error {
	return c.JSON(http.StatusOK, AutoSpeakResponse{
		Enabled: deps.Playback.AutoSpeak(),
		Status:  string(deps.Playback.Status()),
	})
}

func getConversation(c echo.Context, deps Deps) error {
	if deps.Conversation == nil {
		return c.JSON(http.StatusOK, []entities.ThreadMessage{})
	}
	return c.JSON(http.StatusOK, deps.Conversation.Messages())
}

// textQuery forwards a typed question to the external text collaborator,
// sharing the ledger and thread with the voice path.
func textQuery(c echo.Context, deps Deps) error {
	if deps.TextQuerier == nil {
		return c.JSON(http.StatusNotImplemented, ErrorResponse{
			Error:   "text_query_unbound",
			Message: "No text query backend is configured",
		})
	}

	var req TextQueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_query",
			Message: "Query is required",
		})
	}

	ctx := c.Request().Context()

	var thread []entities.ThreadMessage
	if deps.Conversation != nil {
		thread = deps.Conversation.Messages()
	}

	answer, err := deps.TextQuerier.Query(ctx, req.Query, thread)
	if err != nil {
		deps.Logger.Error("Text query failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "query_failed",
			Message: err.Error(),
		})
	}

	if deps.Conversation != nil {
		if err := deps.Conversation.AppendTurn(ctx, req.Query, answer); err != nil {
			deps.Logger.Error("Failed to append conversation turn", zap.Error(err))
		}
	}
	if _, err := deps.History.Append(ctx, entities.ModalityText, req.Query, answer); err != nil {
		deps.Logger.Error("Failed to append history entry", zap.Error(err))
	}

	deps.Playback.Speak(answer)
	return c.JSON(http.StatusOK, TextQueryResponse{Answer: answer})
}
