package geodata

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Provider はハンドラーから見たジオデータ取得のインターフェースです。
type Provider interface {
	Fetch(ctx context.Context, bbox BoundingBox) (*UrbanData, error)
}

// UrbanMeshHandler は GET /api/urbanmesh のハンドラーを返します。
func UrbanMeshHandler(provider Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.Query("bbox"))
		if raw == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "bbox を south,west,north,east 形式で指定してください。",
			})
			return
		}

		bbox, err := ParseBBox(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
			return
		}

		data, err := provider.Fetch(c.Request.Context(), bbox)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジオデータの取得に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusOK, data)
	}
}
