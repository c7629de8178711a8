package router

import (
    "bytes"
    "encoding/json"
    "fmt"
    "mime/multipart"
    "net/http"
    "net/http/httptest"
    "regexp"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "golang.org/x/crypto/bcrypt"

    "github.com/iliyamo/blog-platform/internal/config"
    "github.com/iliyamo/blog-platform/internal/database/dbtest"
    "github.com/iliyamo/blog-platform/internal/handler"
    "github.com/iliyamo/blog-platform/internal/mail"
    "github.com/iliyamo/blog-platform/internal/middleware"
    "github.com/iliyamo/blog-platform/internal/repository"
    "github.com/iliyamo/blog-platform/internal/service"
    "github.com/iliyamo/blog-platform/internal/storage"
    "github.com/iliyamo/blog-platform/internal/utils"
)

type outbox struct {
    mu   sync.Mutex
    msgs []mail.Message
}

func (o *outbox) Notify(m mail.Message) {
    o.mu.Lock()
    defer o.mu.Unlock()
    o.msgs = append(o.msgs, m)
}

var linkToken = regexp.MustCompile(`/(?:emailverify|resetpassword)/([0-9a-f]{64})`)

func (o *outbox) lastToken(t *testing.T) string {
    t.Helper()
    o.mu.Lock()
    defer o.mu.Unlock()
    require.NotEmpty(t, o.msgs)
    m := linkToken.FindStringSubmatch(o.msgs[len(o.msgs)-1].HTML)
    require.Len(t, m, 2)
    return m[1]
}

type testServer struct {
    e      *echo.Echo
    mail   *outbox
    tokens *utils.TokenService
}

func newTestServer(t *testing.T, oauth config.OAuthConfig) *testServer {
    t.Helper()
    cfg := config.Config{
        Env:           "test",
        ServerURL:     "http://localhost:5000",
        ClientURL:     "http://localhost:5173",
        UploadDir:     t.TempDir(),
        TokenTTL:      time.Hour,
        ResetTokenTTL: 30 * time.Minute,
        BcryptCost:    bcrypt.MinCost,
        OAuth:         oauth,
    }
    db := dbtest.Open(t)
    users := repository.NewUserRepo(db)
    blogs := repository.NewBlogRepo(db)
    comments := repository.NewCommentRepo(db)
    tokens := utils.NewTokenService("test-secret", cfg.TokenTTL)
    revoker := middleware.NewMemoryRevoker()
    uploads, err := storage.NewUploads(cfg.UploadDir)
    require.NoError(t, err)

    box := &outbox{}
    authH := handler.NewAuthHandler(cfg, service.NewAuthService(cfg, users, tokens, box), tokens, revoker)
    e := New(Deps{
        Cfg:     cfg,
        Tokens:  tokens,
        Revoker: revoker,
        Auth:    authH,
        OAuth:   handler.NewOAuthHandler(service.NewOAuthBridge(cfg.OAuth, users, tokens), authH, "/login"),
        User:    handler.NewUserHandler(users, uploads, cfg.ServerURL),
        Blog:    handler.NewBlogHandler(blogs),
        Comment: handler.NewCommentHandler(comments, blogs),
        Upload:  handler.NewUploadHandler(uploads),
    })
    return &testServer{e: e, mail: box, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
    t.Helper()
    var req *http.Request
    if body != nil {
        bs, err := json.Marshal(body)
        require.NoError(t, err)
        req = httptest.NewRequest(method, path, bytes.NewReader(bs))
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    } else {
        req = httptest.NewRequest(method, path, nil)
    }
    if token != "" {
        req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
    }
    rec := httptest.NewRecorder()
    s.e.ServeHTTP(rec, req)
    return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
    t.Helper()
    var out map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
    return out
}

// signedIn registers, verifies and signs in a user, returning its id and token.
func (s *testServer) signedIn(t *testing.T, name, email string) (uint64, string) {
    t.Helper()
    rec := s.do(t, http.MethodPost, "/api/public/signup", echo.Map{"name": name, "email": email, "password": "pw"}, "")
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    rec = s.do(t, http.MethodGet, "/api/public/emailverify/"+s.mail.lastToken(t), nil, "")
    require.Equal(t, http.StatusOK, rec.Code)
    rec = s.do(t, http.MethodPost, "/api/public/signin", echo.Map{"email": email, "password": "pw"}, "")
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
    body := decode(t, rec)
    return uint64(body["userId"].(float64)), body["token"].(string)
}

func TestSignupVerifySignin(t *testing.T) {
    s := newTestServer(t, config.OAuthConfig{})

    rec := s.do(t, http.MethodPost, "/api/public/signup", echo.Map{"name": "Ann", "email": "ann@x.com", "password": "pw"}, "")
    require.Equal(t, http.StatusCreated, rec.Code)
    assert.JSONEq(t, `{"message":"User registered. Please verify your email."}`, rec.Body.String())

    rec = s.do(t, http.MethodPost, "/api/public/signin", echo.Map{"email": "ann@x.com", "password": "pw"}, "")
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.JSONEq(t, `{"message":"Please verify your email first"}`, rec.Body.String())

    raw := s.mail.lastToken(t)
    rec = s.do(t, http.MethodGet, "/api/public/emailverify/"+raw, nil, "")
    assert.Equal(t, http.StatusOK, rec.Code)
    rec = s.do(t, http.MethodGet, "/api/public/emailverify/"+raw, nil, "")
    assert.Equal(t, http.StatusNotFound, rec.Code)

    rec = s.do(t, http.MethodPost, "/api/public/signin", echo.Map{"email": "ann@x.com", "password": "bad"}, "")
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.JSONEq(t, `{"message":"Invalid credentials"}`, rec.Body.String())

    rec = s.do(t, http.MethodPost, "/api/public/signin", echo.Map{"email": "ann@x.com", "password": "pw"}, "")
    require.Equal(t, http.StatusOK, rec.Code)
    body := decode(t, rec)
    assert.Equal(t, "User Logged In Successfully", body["message"])
    assert.NotEmpty(t, body["token"])

    var session *http.Cookie
    for _, ck := range rec.Result().Cookies() {
        if ck.Name == middleware.CookieName {
            session = ck
        }
    }
    require.NotNil(t, session)
    assert.True(t, session.HttpOnly)
    assert.Equal(t, body["token"], session.Value)

    req := httptest.NewRequest(http.MethodGet, "/api/public/check-auth", nil)
    req.AddCookie(session)
    rec = httptest.NewRecorder()
    s.e.ServeHTTP(rec, req)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, body["userId"], decode(t, rec)["userId"])
}

func TestSignupRejections(t *testing.T) {
    s := newTestServer(t, config.OAuthConfig{})
    cases := []struct {
        body echo.Map
        code int
        msg  string
    }{
        {echo.Map{"name": "A", "email": "a@x.com"}, http.StatusBadRequest, "All fields are required"},
        {echo.Map{"name": "ABCDEFGHIJKLMNOPQRSTU", "email": "a@x.com", "password": "p"}, http.StatusBadRequest, "Name must be at most 20 characters"},
        {echo.Map{"name": "A", "email": "nope", "password": "p"}, http.StatusBadRequest, "Invalid email address"},
        {echo.Map{"name": "A", "email": "a@x.com", "password": strings.Repeat("p", 80)}, http.StatusBadRequest, "Password must be at most 72 bytes"},
    }
    for _, tc := range cases {
        rec := s.do(t, http.MethodPost, "/api/public/signup", tc.body, "")
        assert.Equal(t, tc.code, rec.Code)
        assert.Equal(t, tc.msg, decode(t, rec)["message"])
    }

    ok := echo.Map{"name": "A", "email": "a@x.com", "password": "p"}
    require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/public/signup", ok, "").Code)
    rec := s.do(t, http.MethodPost, "/api/public/signup", ok, "")
    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.JSONEq(t, `{"message":"Email already exists"}`, rec.Body.String())
}

func TestPasswordResetLink(t *testing.T) {
    s := newTestServer(t, config.OAuthConfig{})
    s.signedIn(t, "Ann", "ann@x.com")

    rec := s.do(t, http.MethodPost, "/api/public/resetpassword", echo.Map{"email": "ghost@x.com"}, "")
    assert.Equal(t, http.StatusNotFound, rec.Code)

    rec = s.do(t, http.MethodPost, "/api/public/resetpassword", echo.Map{"email": "ann@x.com"}, "")
    require.Equal(t, http.StatusOK, rec.Code)
    raw := s.mail.lastToken(t)

    rec = s.do(t, http.MethodPost, "/api/public/resetpassword/"+raw, echo.Map{"password": strings.Repeat("p", 80)}, "")
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.JSONEq(t, `{"message":"Password must be at most 72 bytes"}`, rec.Body.String())

    // the rejected attempt leaves the link usable
    rec = s.do(t, http.MethodPost, "/api/public/resetpassword/"+raw, echo.Map{"password": "fresh"}, "")
    require.Equal(t, http.StatusOK, rec.Code)
    rec = s.do(t, http.MethodPost, "/api/public/resetpassword/"+raw, echo.Map{"password": "again"}, "")
    assert.Equal(t, http.StatusNotFound, rec.Code)

    assert.Equal(t, http.StatusBadRequest,
        s.do(t, http.MethodPost, "/api/public/signin", echo.Map{"email": "ann@x.com", "password": "pw"}, "").Code)
    assert.Equal(t, http.StatusOK,
        s.do(t, http.MethodPost, "/api/public/signin", echo.Map{"email": "ann@x.com", "password": "fresh"}, "").Code)
}

func TestLogoutRevokesToken(t *testing.T) {
    s := newTestServer(t, config.OAuthConfig{})
    _, tok := s.signedIn(t, "Ann", "ann@x.com")

    require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/private/user/getall", nil, tok).Code)

    rec := s.do(t, http.MethodPost, "/api/public/logout", nil, tok)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"message":"Logged out successfully"}`, rec.Body.String())

    rec = s.do(t, http.MethodGet, "/api/private/user/getall", nil, tok)
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
    assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/public/check-auth", nil, tok).Code)

    // a second logout without a live token still succeeds
    assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/public/logout", nil, "").Code)
}

func TestPrivateRequiresToken(t *testing.T) {
    s := newTestServer(t, config.OAuthConfig{})
    rec := s.do(t, http.MethodGet, "/api/private/blog/getall", nil, "")
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
    assert.JSONEq(t, `{"message":"No token provided or invalid format."}`, rec.Body.String())

    rec = s.do(t, http.MethodGet, "/api/private/blog/getall", nil, "garbage")
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
    assert.JSONEq(t, `{"message":"Invalid token"}`, rec.Body.String())
}

func TestBlogAndCommentLifecycle(t *testing.T) {
    s := newTestServer(t, config.OAuthConfig{})
    uid, tok := s.signedIn(t, "Ann", "ann@x.com")

    rec := s.do(t, http.MethodPost, "/api/private/blog/create", echo.Map{"title": "T"}, tok)
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    rec = s.do(t, http.MethodPost, "/api/private/blog/create", echo.Map{
        "title": "Hello", "content": "World", "category": "go", "tags": []string{"a", "b"},
    }, tok)
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    blog := decode(t, rec)["blog"].(map[string]any)
    blogID := uint64(blog["id"].(float64))
    assert.Equal(t, float64(uid), blog["authorId"])
    assert.Equal(t, "Ann", blog["author"].(map[string]any)["name"])

    rec = s.do(t, http.MethodPost, "/api/private/blog/create", echo.Map{
        "author": 999, "title": "x", "content": "y", "category": "z",
    }, tok)
    assert.Equal(t, http.StatusNotFound, rec.Code)

    rec = s.do(t, http.MethodGet, "/api/private/blog/getall", nil, tok)
    require.Equal(t, http.StatusOK, rec.Code)
    var list []map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
    assert.Len(t, list, 1)

    path := fmt.Sprintf("/api/private/blog/getbyid/%d", blogID)
    rec = s.do(t, http.MethodGet, path, nil, tok)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, float64(1), decode(t, rec)["views"])
    assert.Equal(t, float64(2), decode(t, s.do(t, http.MethodGet, path, nil, tok))["views"])

    rec = s.do(t, http.MethodPut, fmt.Sprintf("/api/private/blog/edit/%d", blogID), echo.Map{"title": "Renamed"}, tok)
    require.Equal(t, http.StatusOK, rec.Code)
    edited := decode(t, rec)
    assert.Equal(t, "Renamed", edited["title"])
    assert.Equal(t, "World", edited["content"])
    assert.Equal(t, http.StatusBadRequest,
        s.do(t, http.MethodPut, fmt.Sprintf("/api/private/blog/edit/%d", blogID), echo.Map{"title": ""}, tok).Code)
    assert.Equal(t, http.StatusNotFound,
        s.do(t, http.MethodPut, "/api/private/blog/edit/999", echo.Map{"title": "x"}, tok).Code)

    rec = s.do(t, http.MethodPost, "/api/private/comment/add", echo.Map{"blogId": 999, "content": "hi"}, tok)
    assert.Equal(t, http.StatusNotFound, rec.Code)
    assert.JSONEq(t, `{"message":"Blog not found"}`, rec.Body.String())

    rec = s.do(t, http.MethodPost, "/api/private/comment/add", echo.Map{"blogId": blogID, "content": "hi"}, tok)
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    comment := decode(t, rec)["comment"].(map[string]any)
    assert.Equal(t, float64(uid), comment["userId"])

    rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/private/comment/getbyblog/%d", blogID), nil, tok)
    require.Equal(t, http.StatusOK, rec.Code)
    var comments []map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &comments))
    require.Len(t, comments, 1)
    assert.Equal(t, "hi", comments[0]["content"])

    cpath := fmt.Sprintf("/api/private/comment/delete/%d", uint64(comment["id"].(float64)))
    assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, cpath, nil, tok).Code)
    assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, cpath, nil, tok).Code)

    dpath := fmt.Sprintf("/api/private/blog/deletebyid/%d", blogID)
    assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, dpath, nil, tok).Code)
    assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, nil, tok).Code)
}

func TestUserEndpoints(t *testing.T) {
    s := newTestServer(t, config.OAuthConfig{})
    uid, tok := s.signedIn(t, "Ann", "ann@x.com")
    bobID, _ := s.signedIn(t, "Bob", "bob@x.com")
    carolID, _ := s.signedIn(t, "Carol", "carol@x.com")

    rec := s.do(t, http.MethodGet, "/api/private/user/getall", nil, tok)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.NotContains(t, rec.Body.String(), "password")

    edit := fmt.Sprintf("/api/private/user/edit/%d", uid)
    rec = s.do(t, http.MethodPut, edit, echo.Map{"name": "Annie"}, tok)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "Annie", decode(t, rec)["name"])

    rec = s.do(t, http.MethodPut, edit, echo.Map{"email": "bob@x.com"}, tok)
    assert.Equal(t, http.StatusConflict, rec.Code)
    rec = s.do(t, http.MethodPut, edit, echo.Map{"email": "not-an-email"}, tok)
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/private/user/getbyid/999", nil, tok).Code)
    assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/private/user/getbyid/abc", nil, tok).Code)

    del := fmt.Sprintf("/api/private/user/deletebyid/%d", carolID)
    rec = s.do(t, http.MethodDelete, del, nil, tok)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"message":"User deleted successfully"}`, rec.Body.String())
    rec = s.do(t, http.MethodDelete, del, nil, tok)
    assert.Equal(t, http.StatusNotFound, rec.Code)
    assert.JSONEq(t, `{"message":"User not found"}`, rec.Body.String())
    assert.Equal(t, http.StatusNotFound,
        s.do(t, http.MethodGet, fmt.Sprintf("/api/private/user/getbyid/%d", carolID), nil, tok).Code)
    assert.Equal(t, http.StatusOK,
        s.do(t, http.MethodGet, fmt.Sprintf("/api/private/user/getbyid/%d", bobID), nil, tok).Code)

    rec = s.do(t, http.MethodDelete, "/api/private/user/deleteall", nil, tok)
    require.Equal(t, http.StatusOK, rec.Code)
    rec = s.do(t, http.MethodGet, "/api/private/user/getall", nil, tok)
    assert.JSONEq(t, `[]`, rec.Body.String())
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func multipartFile(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
    t.Helper()
    var buf bytes.Buffer
    w := multipart.NewWriter(&buf)
    fw, err := w.CreateFormFile(field, name)
    require.NoError(t, err)
    _, err = fw.Write(content)
    require.NoError(t, err)
    require.NoError(t, w.Close())
    return &buf, w.FormDataContentType()
}

func (s *testServer) upload(t *testing.T, path, field, name string, content []byte, tok string) *httptest.ResponseRecorder {
    t.Helper()
    body, ct := multipartFile(t, field, name, content)
    req := httptest.NewRequest(http.MethodPost, path, body)
    req.Header.Set(echo.HeaderContentType, ct)
    req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
    rec := httptest.NewRecorder()
    s.e.ServeHTTP(rec, req)
    return rec
}

func TestUploads(t *testing.T) {
    s := newTestServer(t, config.OAuthConfig{})
    uid, tok := s.signedIn(t, "Ann", "ann@x.com")

    rec := s.upload(t, "/api/private/upload", "file", "notes.txt", []byte("plain text"), tok)
    assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
    assert.JSONEq(t, `{"message":"Only images and PDFs are allowed!"}`, rec.Body.String())

    rec = s.upload(t, "/api/private/upload", "file", "pic.png", pngBytes, tok)
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
    filePath := decode(t, rec)["filePath"].(string)
    assert.Regexp(t, `^/uploads/\d+-[0-9a-f-]{36}\.png$`, filePath)

    rec = s.do(t, http.MethodGet, filePath, nil, "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, pngBytes, rec.Body.Bytes())

    avatar := fmt.Sprintf("/api/private/user/upload-avatar/%d", uid)
    rec = s.upload(t, avatar, "avatar", "doc.pdf", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), tok)
    assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
    assert.JSONEq(t, `{"message":"Only images are allowed!"}`, rec.Body.String())

    rec = s.upload(t, avatar, "avatar", "me.png", pngBytes, tok)
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
    user := decode(t, rec)["user"].(map[string]any)
    assert.Regexp(t, `^http://localhost:5000/uploads/`, user["avatar"])

    rec = s.upload(t, "/api/private/user/upload-avatar/999", "avatar", "me.png", pngBytes, tok)
    assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndNotFound(t *testing.T) {
    s := newTestServer(t, config.OAuthConfig{})

    rec := s.do(t, http.MethodGet, "/", nil, "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"message":"Server is running and working"}`, rec.Body.String())

    rec = s.do(t, http.MethodGet, "/healthz", nil, "")
    assert.Equal(t, http.StatusOK, rec.Code)

    rec = s.do(t, http.MethodGet, "/no/such/route", nil, "")
    assert.Equal(t, http.StatusNotFound, rec.Code)
    assert.JSONEq(t, `{"message":"Not Found Router"}`, rec.Body.String())
}

func TestGitHubRoutes(t *testing.T) {
    t.Run("disabled", func(t *testing.T) {
        s := newTestServer(t, config.OAuthConfig{})
        assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/public/auth/github", nil, "").Code)
    })

    s := newTestServer(t, config.OAuthConfig{
        ClientID:     "client",
        ClientSecret: "secret",
        CallbackURL:  "http://localhost:5000/api/public/auth/github/callback",
        AuthURL:      "http://provider.test/authorize",
        TokenURL:     "http://provider.test/token",
        APIURL:       "http://provider.test",
    })

    rec := s.do(t, http.MethodGet, "/api/public/auth/github", nil, "")
    require.Equal(t, http.StatusFound, rec.Code)
    assert.Contains(t, rec.Header().Get(echo.HeaderLocation), "http://provider.test/authorize?")
    assert.Contains(t, rec.Header().Get(echo.HeaderLocation), "client_id=client")

    rec = s.do(t, http.MethodGet, "/api/public/auth/github/callback?state=forged&code=abc", nil, "")
    assert.Equal(t, http.StatusFound, rec.Code)
    assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
}
