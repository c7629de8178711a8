package main // Entry point package

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"

    "github.com/iliyamo/blog-platform/internal/config"
    "github.com/iliyamo/blog-platform/internal/database"
    "github.com/iliyamo/blog-platform/internal/handler"
    "github.com/iliyamo/blog-platform/internal/mail"
    "github.com/iliyamo/blog-platform/internal/middleware"
    "github.com/iliyamo/blog-platform/internal/queue"
    "github.com/iliyamo/blog-platform/internal/repository"
    "github.com/iliyamo/blog-platform/internal/router"
    "github.com/iliyamo/blog-platform/internal/service"
    "github.com/iliyamo/blog-platform/internal/storage"
    "github.com/iliyamo/blog-platform/internal/utils"
)

const mailTimeout = 30 * time.Second

func main() {
    if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
        log.Printf("env: %v", err)
    }
    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("config: %v", err)
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    db, err := database.Open(cfg.DBDriver, cfg.DBURL)
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    defer db.Close()
    mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
    err = database.Migrate(mctx, db, cfg.DBDriver)
    cancel()
    if err != nil {
        log.Fatalf("migrate: %v", err)
    }

    rdb := config.NewRedisClient(cfg.Redis)
    if rdb != nil {
        defer rdb.Close()
    }
    var revoker middleware.Revoker = middleware.NewMemoryRevoker()
    if rdb != nil {
        revoker = middleware.NewRedisRevoker(rdb)
    }

    notifier := mail.NewAsyncNotifier(mailSender(ctx, cfg.Mail), mailTimeout)

    uploads, err := storage.NewUploads(cfg.UploadDir)
    if err != nil {
        log.Fatalf("uploads: %v", err)
    }

    users := repository.NewUserRepo(db)
    blogs := repository.NewBlogRepo(db)
    comments := repository.NewCommentRepo(db)
    tokens := utils.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)

    authSvc := service.NewAuthService(cfg, users, tokens, notifier)
    bridge := service.NewOAuthBridge(cfg.OAuth, users, tokens)
    authH := handler.NewAuthHandler(cfg, authSvc, tokens, revoker)

    e := router.New(router.Deps{
        Cfg:     cfg,
        Redis:   rdb,
        Tokens:  tokens,
        Revoker: revoker,
        Auth:    authH,
        OAuth:   handler.NewOAuthHandler(bridge, authH, cfg.OAuth.FailureRedirect),
        User:    handler.NewUserHandler(users, uploads, cfg.ServerURL),
        Blog:    handler.NewBlogHandler(blogs),
        Comment: handler.NewCommentHandler(comments, blogs),
        Upload:  handler.NewUploadHandler(uploads),
    })

    addr := ":" + cfg.Port
    go func() {
        log.Printf("listening on %s (env=%s)", addr, cfg.Env)
        if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatal(err)
        }
    }()

    <-ctx.Done()
    log.Println("shutting down")
    sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer scancel()
    if err := e.Shutdown(sctx); err != nil {
        log.Printf("shutdown: %v", err)
    }
}

// mailSender picks the delivery path for outgoing email.  With the queue
// transport the consumer runs in this process unless disabled.
func mailSender(ctx context.Context, mc config.MailConfig) mail.Sender {
    smtp := mail.NewSMTPSender(mc.SMTPHost, mc.SMTPPort, mc.From, mc.Password, mc.SenderName)
    switch mc.Transport {
    case "queue":
        if mc.Consume {
            go func() {
                if err := queue.StartMailConsumer(ctx, mc.RabbitMQURL, smtp); err != nil && !errors.Is(err, context.Canceled) {
                    log.Printf("mail consumer stopped: %v", err)
                }
            }()
        }
        return queue.NewPublisher(mc.RabbitMQURL)
    case "smtp":
        return smtp
    default:
        return mail.LogSender{}
    }
}
