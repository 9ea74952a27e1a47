package middleware

import (
	"QuakeSync/internal/config"

	"github.com/gin-gonic/gin"
)

// BasicAuth 除免认证路径外都要求 Basic 认证；失败返回 401 并带 WWW-Authenticate 质询头
func BasicAuth(cfg config.AuthConfig) gin.HandlerFunc {
	auth := gin.BasicAuthForRealm(gin.Accounts{cfg.Username: cfg.Password}, cfg.Realm)
	bypass := pathSet(cfg.BypassPaths)
	return func(c *gin.Context) {
		if _, ok := bypass[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		auth(c)
	}
}

func pathSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}
