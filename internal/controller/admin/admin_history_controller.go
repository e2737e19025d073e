package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/Pangolin/internal/dto"
	"github.com/lshigami/Pangolin/internal/service"
	"github.com/rs/zerolog/log"
)

type AdminHistoryController struct {
	historyService service.HistoryService
}

func NewAdminHistoryController(historyService service.HistoryService) *AdminHistoryController {
	return &AdminHistoryController{historyService: historyService}
}

// ListHistories godoc
// @Summary (Admin) List all student histories
// @Description Summary row per student: key, recorded attempt count, last update.
// @Tags Admin - Histories
// @Produce json
// @Success 200 {array} dto.StudentHistorySummaryResponse
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /admin/histories [get]
func (c *AdminHistoryController) ListHistories(ctx *gin.Context) {
	summaries, err := c.historyService.ListHistories(ctx.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Admin ListHistories: Service error")
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to list histories", Details: []string{err.Error()}})
		return
	}
	ctx.JSON(http.StatusOK, summaries)
}
