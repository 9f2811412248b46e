package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess            = 0
	CodeParamError         = 1000
	CodeAuthFailed         = 1001
	CodePermissionDenied   = 1002
	CodeResourceNotFound   = 1003
	CodeDepthLimitExceeded = 1004
	CodeServerError        = 5000
	CodeStoreUnavailable   = 5003
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:            "success",
	CodeParamError:         "参数错误",
	CodeAuthFailed:         "认证失败",
	CodePermissionDenied:   "权限不足",
	CodeResourceNotFound:   "资源不存在",
	CodeDepthLimitExceeded: "最多只能回复两层",
	CodeServerError:        "服务器内部错误",
	CodeStoreUnavailable:   "存储服务暂不可用，请稍后重试",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应，message 为空时使用错误码的默认消息
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

func PermissionError(c *gin.Context, message string) {
	Error(c, CodePermissionDenied, message)
}

func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// DepthLimitError 回复层级超限
func DepthLimitError(c *gin.Context, message string) {
	Error(c, CodeDepthLimitExceeded, message)
}

// StoreUnavailableError 存储暂时不可用，客户端可重试
func StoreUnavailableError(c *gin.Context, message string) {
	Error(c, CodeStoreUnavailable, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}
