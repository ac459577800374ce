// Package gemini mounts the AI proxy endpoint. Browsers post prompts here;
// the service holds the API key and relays the upstream answer.
package gemini

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	geminiclient "github.com/studyplanner/planner-service/internal/gemini"
)

type generateRequest struct {
	Prompt any `json:"prompt"`
}

// MountRoutes registers POST /api/gemini backed by the client.
func MountRoutes(r *gin.Engine, client *geminiclient.Client) {
	r.POST("/api/gemini", func(c *gin.Context) {
		var req generateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "prompt is required and must be a string"})
			return
		}
		prompt, ok := req.Prompt.(string)
		if !ok || prompt == "" {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "prompt is required and must be a string"})
			return
		}

		result, err := client.Generate(c.Request.Context(), prompt)
		if err != nil {
			var ue *geminiclient.UpstreamError
			switch {
			case errors.Is(err, geminiclient.ErrMissingAPIKey):
				c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "GEMINI_API_KEY not configured on server"})
			case errors.Is(err, geminiclient.ErrTimeout):
				c.JSON(http.StatusGatewayTimeout, gin.H{"ok": false, "error": "Upstream request timed out"})
			case errors.As(err, &ue):
				log.Error("Gemini upstream error", "status", ue.Status, "body", ue.Body)
				c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "Upstream API error", "status": ue.Status, "raw": ue.Body})
			default:
				log.Error("Gemini proxy error", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Server error calling Gemini", "details": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"ok": true, "result": result.Text, "raw": result.Raw})
	})
}
