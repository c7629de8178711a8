package handler

import (
    "errors"
    "mime/multipart"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/blog-platform/internal/repository"
    "github.com/iliyamo/blog-platform/internal/storage"
)

// UserHandler exposes the user collection to authenticated callers.
type UserHandler struct {
    Users     *repository.UserRepo
    Uploads   *storage.Uploads
    ServerURL string // prefix for stored avatar URLs
}

func NewUserHandler(users *repository.UserRepo, uploads *storage.Uploads, serverURL string) *UserHandler {
    return &UserHandler{Users: users, Uploads: uploads, ServerURL: serverURL}
}

type userEditReq struct {
    Name   *string `json:"name" validate:"omitempty,max=20"`
    Email  *string `json:"email" validate:"omitempty,email"`
    Avatar *string `json:"avatar"`
}

// GetAll lists every user ordered by id.
func (h *UserHandler) GetAll(c echo.Context) error {
    ctx, cancel := dbCtx(c)
    defer cancel()
    users, err := h.Users.List(ctx)
    if err != nil {
        return internalError(c, err)
    }
    return c.JSON(http.StatusOK, users)
}

// GetByID returns one user.
func (h *UserHandler) GetByID(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return msg(c, http.StatusBadRequest, "Invalid user id")
    }
    ctx, cancel := dbCtx(c)
    defer cancel()
    u, err := h.Users.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return msg(c, http.StatusNotFound, "User not found")
        }
        return internalError(c, err)
    }
    return c.JSON(http.StatusOK, u)
}

// DeleteAll removes every user along with their content.
func (h *UserHandler) DeleteAll(c echo.Context) error {
    ctx, cancel := dbCtx(c)
    defer cancel()
    if _, err := h.Users.DeleteAll(ctx); err != nil {
        return internalError(c, err)
    }
    return msg(c, http.StatusOK, "All users deleted successfully")
}

// DeleteByID removes one user along with their content.
func (h *UserHandler) DeleteByID(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return msg(c, http.StatusBadRequest, "Invalid user id")
    }
    ctx, cancel := dbCtx(c)
    defer cancel()
    if err := h.Users.Delete(ctx, id); err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return msg(c, http.StatusNotFound, "User not found")
        }
        return internalError(c, err)
    }
    return msg(c, http.StatusOK, "User deleted successfully")
}

// Edit applies a partial profile update.  The body is JSON or a multipart
// form whose optional "avatar" file replaces the avatar.
func (h *UserHandler) Edit(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return msg(c, http.StatusBadRequest, "Invalid user id")
    }
    var req userEditReq
    if isMultipart(c) {
        req.Name = formValue(c, "name")
        req.Email = formValue(c, "email")
    } else if err := c.Bind(&req); err != nil {
        return msg(c, http.StatusBadRequest, "Invalid request body")
    }
    if err := c.Validate(&req); err != nil {
        if _, field := failedTag(err); field == "Email" {
            return msg(c, http.StatusBadRequest, "Invalid email address")
        }
        return msg(c, http.StatusBadRequest, "Name must be at most 20 characters")
    }
    if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
        return msg(c, http.StatusBadRequest, "Name cannot be empty")
    }
    patch := repository.UserPatch{Name: req.Name, Email: req.Email, Avatar: req.Avatar}

    if isMultipart(c) {
        if fh, err := c.FormFile("avatar"); err == nil {
            url, err := h.saveAvatar(fh)
            if err != nil {
                return h.uploadError(c, err)
            }
            patch.Avatar = &url
        } else if !errors.Is(err, http.ErrMissingFile) {
            return msg(c, http.StatusBadRequest, "Invalid request body")
        }
    }

    ctx, cancel := dbCtx(c)
    defer cancel()
    u, err := h.Users.Update(ctx, id, patch)
    switch {
    case errors.Is(err, repository.ErrNotFound):
        return msg(c, http.StatusNotFound, "User not found")
    case errors.Is(err, repository.ErrEmailExists):
        return msg(c, http.StatusConflict, "Email already exists")
    case err != nil:
        return internalError(c, err)
    }
    return c.JSON(http.StatusOK, u)
}

// UploadAvatar stores an image and points the user's avatar at it.
func (h *UserHandler) UploadAvatar(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return msg(c, http.StatusBadRequest, "Invalid user id")
    }
    fh, err := c.FormFile("avatar")
    if err != nil {
        return msg(c, http.StatusBadRequest, "No file uploaded")
    }

    ctx, cancel := dbCtx(c)
    defer cancel()
    if _, err := h.Users.GetByID(ctx, id); err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return msg(c, http.StatusNotFound, "User not found")
        }
        return internalError(c, err)
    }

    url, err := h.saveAvatar(fh)
    if err != nil {
        return h.uploadError(c, err)
    }
    u, err := h.Users.Update(ctx, id, repository.UserPatch{Avatar: &url})
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return msg(c, http.StatusNotFound, "User not found")
        }
        return internalError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Avatar uploaded successfully", "user": u})
}

func (h *UserHandler) saveAvatar(fh *multipart.FileHeader) (string, error) {
    path, err := h.Uploads.Save(fh, storage.Images)
    if err != nil {
        return "", err
    }
    return h.ServerURL + path, nil
}

func (h *UserHandler) uploadError(c echo.Context, err error) error {
    if errors.Is(err, storage.ErrUnsupportedMediaType) {
        return msg(c, http.StatusUnsupportedMediaType, "Only images are allowed!")
    }
    return internalError(c, err)
}

// formValue returns nil for fields absent from the multipart form so they
// are left unchanged.
func formValue(c echo.Context, name string) *string {
    form, err := c.MultipartForm()
    if err != nil {
        return nil
    }
    vals, ok := form.Value[name]
    if !ok || len(vals) == 0 {
        return nil
    }
    v := vals[0]
    return &v
}

func isMultipart(c echo.Context) bool {
    return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}
