package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tubegrab/tubegrab/internal/assist"
	"github.com/tubegrab/tubegrab/internal/source"
)

// AssistHandler exposes the video Q&A collaborator. It is a thin wrapper;
// the download core does not depend on it.
type AssistHandler struct {
	Client *assist.Client
}

func (h *AssistHandler) Register(e *echo.Echo) {
	e.POST("/chat-with-ai", h.chat)
}

type assistRequest struct {
	VideoDetails struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Keywords    []string `json:"keywords"`
		Thumbnail   string   `json:"thumbnail"`
	} `json:"videoDetails"`
	UserQuestion string `json:"userQuestion"`
}

func (h *AssistHandler) chat(c echo.Context) error {
	if !h.Client.Enabled() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "AI assistant is not configured.")
	}
	var req assistRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.VideoDetails.Title == "" || req.UserQuestion == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing video details or user question.")
	}

	meta := &source.Metadata{
		Title:       req.VideoDetails.Title,
		Description: req.VideoDetails.Description,
		Keywords:    req.VideoDetails.Keywords,
		Thumbnail:   req.VideoDetails.Thumbnail,
	}
	answer, err := h.Client.Answer(c.Request().Context(), meta, req.UserQuestion)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "An error occurred while talking to the AI.")
	}
	return c.JSON(http.StatusOK, map[string]string{"answer": answer})
}
