package simulation

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Service はトランスポート層から見たジョブ操作のインターフェースです。
type Service interface {
	Create(config map[string]any) (string, error)
	Get(id string) (*Simulation, error)
	List() []*Simulation
}

// CreateHandler は POST /api/simulations のハンドラーを返します。
// 設定はスキーマ検証せずそのまま保存します（未知のキーは無視されます）。
func CreateHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var config map[string]any
		if err := c.ShouldBindJSON(&config); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "シミュレーション設定をJSONオブジェクトで送信してください。",
			})
			return
		}

		id, err := svc.Create(config)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"simulation_id": id,
			"status":        "created",
		})
	}
}

// ListHandler は GET /api/simulations のハンドラーを返します。
func ListHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"simulations": svc.List(),
		})
	}
}

// GetHandler は GET /api/simulations/:id のハンドラーを返します。
func GetHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sim, err := svc.Get(c.Param("id"))
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, sim)
	}
}

// ExportHandler は GET /api/simulations/:id/export のハンドラーを返します。
// format=csv のみをサポートし、フレーム順に1行ずつ書き出します。
func ExportHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		format := c.DefaultQuery("format", "csv")
		if format != "csv" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "UNSUPPORTED_FORMAT",
				"message": fmt.Sprintf("エクスポート形式 %q はサポートされていません。", format),
			})
			return
		}

		sim, err := svc.Get(c.Param("id"))
		if err != nil {
			respondWithError(c, err)
			return
		}

		var sb strings.Builder
		sb.WriteString("frame,time,max_pressure,max_velocity\n")
		for _, frame := range sim.Frames {
			sb.WriteString(strconv.Itoa(frame.Index))
			sb.WriteByte(',')
			sb.WriteString(formatFloat(frame.Time))
			sb.WriteByte(',')
			sb.WriteString(formatFloat(frame.MaxPressure))
			sb.WriteByte(',')
			sb.WriteString(formatFloat(frame.MaxVelocity))
			sb.WriteByte('\n')
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=simulation_%s.csv", sim.ID))
		c.Data(http.StatusOK, "text/csv", []byte(sb.String()))
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "SIMULATION_NOT_FOUND",
			"message": "指定されたシミュレーションは存在しません。",
		})
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		if apiErr.Code == "INTERNAL_ERROR" {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
