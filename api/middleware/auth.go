package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/pdf-citation-QA/api/model"
)

// APIKeyHeader 携带接口密钥的请求头
const APIKeyHeader = "X-API-Key"

// APIKeyAuth 接口密钥鉴权中间件
// 配置为空串时鉴权关闭，所有请求直接放行
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			log.WithField("path", c.Request.URL.Path).Warn("Rejected request with invalid API key")

			c.AbortWithStatusJSON(http.StatusUnauthorized, model.NewErrorResponse(
				http.StatusUnauthorized,
				"无效的接口密钥",
			))
			return
		}

		c.Next()
	}
}
