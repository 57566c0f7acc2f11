package auth

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/qiminjie89/quasihttp/internal/protocol"
	"github.com/qiminjie89/quasihttp/pkg/logger"
	"github.com/qiminjie89/quasihttp/pkg/quasihttp"
)

// HeaderAuthorization 携带 token 的头部
const HeaderAuthorization = "Authorization"

const bearerPrefix = "Bearer "

type claimsKey struct{}

// SignRequest 在请求头部写入 Bearer token
func SignRequest(req *quasihttp.Request, token string) {
	if req.Header == nil {
		req.Header = quasihttp.Header{}
	}
	req.Header.Set(HeaderAuthorization, bearerPrefix+token)
}

// TokenFromRequest 取出 Bearer token
func TokenFromRequest(req *quasihttp.Request) string {
	v := req.Header.Get(HeaderAuthorization)
	if !strings.HasPrefix(v, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// ClaimsFromContext 返回 RequireToken 验证通过的 claims
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// RequireToken 验证请求 token，失败时直接返回 401
func RequireToken(v *JWTValidator, next quasihttp.Handler) quasihttp.Handler {
	return quasihttp.HandlerFunc(func(ctx context.Context, req *quasihttp.Request) (*quasihttp.Response, error) {
		claims, err := v.Validate(TokenFromRequest(req))
		if err != nil {
			logger.Info("request rejected",
				zap.String("target", req.Target),
				zap.String("remote", req.RemoteAddr),
				zap.Error(err),
			)
			resp := quasihttp.NewResponse(protocol.StatusUnauthorized, strings.NewReader(err.Error()))
			resp.ContentType = protocol.ContentTypeText
			return resp, nil
		}
		return next.ServeQuasi(context.WithValue(ctx, claimsKey{}, claims), req)
	})
}
