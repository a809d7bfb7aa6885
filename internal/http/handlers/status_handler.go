// Status HTTP handler.
//
// GET /status reports which required configuration keys are missing so
// operators (and the frontend) can distinguish a misconfigured deployment
// from a broken one.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StatusResponse lists required configuration keys that are unset.
type StatusResponse struct {
	MissingKeys []string `json:"missing_keys"`
}

// Status godoc
// @ID          status
// @Summary     Deployment status
// @Description Reports required environment keys that are not configured. An empty list means the deployment is fully configured.
// @Tags        Status
// @Produce     json
//
// @Success     200  {object}  handlers.StatusResponse
// @Router      /status [get]
func (h *Handlers) Status(c *gin.Context) {
	missing := []string{}
	if h.missingKeys != nil {
		if keys := h.missingKeys(); keys != nil {
			missing = keys
		}
	}
	ok(c, http.StatusOK, StatusResponse{MissingKeys: missing})
}
