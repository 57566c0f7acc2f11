// Package protocol 定义 quasi-HTTP 的线路格式、编解码与协议常量
package protocol

// 协议版本
const (
	Version1 byte = 0x01
)

// 常用方法
const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodDelete = "DELETE"
)

// 状态码（沿用 HTTP 约定：2xx 成功，4xx 客户端错误，5xx 服务端错误）
const (
	StatusOK                  = 200
	StatusNoContent           = 204
	StatusBadRequest          = 400
	StatusUnauthorized        = 401
	StatusForbidden           = 403
	StatusNotFound            = 404
	StatusRequestTimeout      = 408
	StatusInternalServerError = 500
	StatusServiceUnavailable  = 503
)

// StatusText 状态码对应的消息
var StatusText = map[int]string{
	StatusOK:                  "OK",
	StatusNoContent:           "No Content",
	StatusBadRequest:          "Bad Request",
	StatusUnauthorized:        "Unauthorized",
	StatusForbidden:           "Forbidden",
	StatusNotFound:            "Not Found",
	StatusRequestTimeout:      "Request Timeout",
	StatusInternalServerError: "Internal Server Error",
	StatusServiceUnavailable:  "Service Unavailable",
}

// IsSuccess 2xx
func IsSuccess(code int) bool { return code >= 200 && code < 300 }

// IsClientError 4xx
func IsClientError(code int) bool { return code >= 400 && code < 500 }

// IsServerError 5xx
func IsServerError(code int) bool { return code >= 500 && code < 600 }

// 内容类型
const (
	ContentTypeMsgpack     = "application/msgpack"
	ContentTypeOctetStream = "application/octet-stream"
	ContentTypeText        = "text/plain; charset=utf-8"
)
