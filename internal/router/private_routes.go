package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/blog-platform/internal/middleware"
)

const privatePrefix = "/api/private"

// RegisterPrivate registers the session-protected endpoints under
// /api/private.  Per-user rate limits run here, after JWTAuth.  Any
// successful write purges cached blog reads.
func RegisterPrivate(e *echo.Echo, d Deps) {
    mw := []echo.MiddlewareFunc{middleware.JWTAuth(d.Tokens, d.Revoker)}
    if d.Cfg.RateLimit.KeysByUser() {
        mw = append(mw, middleware.NewRateLimiter(d.Cfg.RateLimit, d.Redis))
    }
    mw = append(mw, middleware.NewCachePurge(d.Cfg.Cache, d.Redis))
    g := e.Group(privatePrefix, mw...)

    // ---- Users ----
    g.GET("/user/getall", d.User.GetAll)
    g.GET("/user/getbyid/:id", d.User.GetByID)
    g.DELETE("/user/deleteall", d.User.DeleteAll)
    g.DELETE("/user/deletebyid/:id", d.User.DeleteByID)
    g.PUT("/user/edit/:id", d.User.Edit)
    g.POST("/user/upload-avatar/:id", d.User.UploadAvatar)

    // ---- Blogs ----
    g.POST("/blog/create", d.Blog.Create)
    g.GET("/blog/getall", d.Blog.GetAll, middleware.NewRedisCache(d.Cfg.Cache, d.Redis))
    g.GET("/blog/getbyid/:id", d.Blog.GetByID)
    g.PUT("/blog/edit/:id", d.Blog.Edit)
    g.DELETE("/blog/deletebyid/:id", d.Blog.DeleteByID)

    // ---- Comments ----
    g.POST("/comment/add", d.Comment.Add)
    g.GET("/comment/getbyblog/:blogId", d.Comment.GetByBlog)
    g.DELETE("/comment/delete/:id", d.Comment.Delete)

    // ---- Files ----
    g.POST("/upload", d.Upload.Upload)
}
