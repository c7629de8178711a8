package router // router defines how HTTP routes are registered for the API

import (
    "errors"
    "log"
    "net/http"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/blog-platform/internal/config"
    "github.com/iliyamo/blog-platform/internal/handler"
    "github.com/iliyamo/blog-platform/internal/middleware"
    "github.com/iliyamo/blog-platform/internal/utils"
)

// Deps carries everything the routes need.  Redis may be nil.
type Deps struct {
    Cfg     config.Config
    Redis   *redis.Client
    Tokens  *utils.TokenService
    Revoker middleware.Revoker

    Auth    *handler.AuthHandler
    OAuth   *handler.OAuthHandler
    User    *handler.UserHandler
    Blog    *handler.BlogHandler
    Comment *handler.CommentHandler
    Upload  *handler.UploadHandler
}

// New builds the echo instance with global middleware and every route.
func New(d Deps) *echo.Echo {
    e := echo.New()
    e.HideBanner = true
    e.Validator = handler.NewRequestValidator()
    e.HTTPErrorHandler = errorHandler

    e.Use(echomw.Recover())
    e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        LogMethod:  true,
        LogURI:     true,
        LogStatus:  true,
        LogLatency: true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            log.Printf("%s %s %d %s", v.Method, v.URI, v.Status, v.Latency)
            return nil
        },
    }))
    e.Use(echomw.Secure())
    e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
        AllowOrigins:     []string{d.Cfg.ClientURL},
        AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
        AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
        AllowCredentials: true,
    }))
    e.Use(echomw.BodyLimit("10M"))
    e.Use(middleware.NewPublicRateLimiter(d.Cfg.RateLimit, d.Redis, privatePrefix))

    RegisterRoutes(e, d.Cfg.UploadDir)
    RegisterAuth(e, d.Auth, d.OAuth)
    RegisterPrivate(e, d)
    e.RouteNotFound("/*", handler.NotFound)
    return e
}

// RegisterRoutes registers the health endpoints and the uploaded files.
func RegisterRoutes(e *echo.Echo, uploadDir string) {
    e.GET("/", handler.Root)
    e.GET("/healthz", handler.Health)
    e.Static("/uploads", uploadDir)
}

// RegisterAuth registers the account endpoints under /api/public.  None of
// them require a session; logout and check-auth read one when present.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, o *handler.OAuthHandler) {
    g := e.Group("/api/public")
    g.POST("/signup", a.Signup)
    g.GET("/emailverify/:token", a.VerifyEmail)
    g.POST("/signin", a.Signin)
    g.POST("/resetpassword", a.RequestPasswordReset)
    g.POST("/resetpassword/:token", a.ResetPassword)
    g.GET("/check-auth", a.CheckAuth)
    g.POST("/logout", a.Logout)

    if o != nil {
        g.GET("/auth/github", o.GitHubLogin)
        g.GET("/auth/github/callback", o.GitHubCallback)
    }
}

// errorHandler renders every unhandled error as {"message": ...}.  Details
// of server errors are logged, never returned.
func errorHandler(err error, c echo.Context) {
    if c.Response().Committed {
        return
    }
    code := http.StatusInternalServerError
    text := "Internal Server Error"
    var he *echo.HTTPError
    if errors.As(err, &he) {
        code = he.Code
        switch {
        case code == http.StatusNotFound:
            text = "Not Found Router"
        case code < http.StatusInternalServerError:
            if m, ok := he.Message.(string); ok {
                text = m
            } else {
                text = http.StatusText(code)
            }
        }
    }
    if code >= http.StatusInternalServerError {
        c.Logger().Error(err)
    }
    if c.Request().Method == http.MethodHead {
        err = c.NoContent(code)
    } else {
        err = c.JSON(code, echo.Map{"message": text})
    }
    if err != nil {
        c.Logger().Error(err)
    }
}
