package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/blog-platform/internal/model"
    "github.com/iliyamo/blog-platform/internal/repository"
)

// BlogHandler serves blog post CRUD.
type BlogHandler struct {
    Blogs *repository.BlogRepo
}

func NewBlogHandler(blogs *repository.BlogRepo) *BlogHandler {
    return &BlogHandler{Blogs: blogs}
}

type blogCreateReq struct {
    Author   uint64   `json:"author"`
    Title    string   `json:"title" validate:"required"`
    Content  string   `json:"content" validate:"required"`
    Summary  string   `json:"summary"`
    Tags     []string `json:"tags"`
    Category string   `json:"category" validate:"required"`
}

// Create stores a new post.  The author defaults to the caller.
func (h *BlogHandler) Create(c echo.Context) error {
    var req blogCreateReq
    if err := c.Bind(&req); err != nil {
        return msg(c, http.StatusBadRequest, "Invalid request body")
    }
    if err := c.Validate(&req); err != nil {
        return msg(c, http.StatusBadRequest, "Title, content and category are required")
    }
    if req.Author == 0 {
        uid, err := getUserID(c)
        if err != nil {
            return msg(c, http.StatusUnauthorized, "Invalid token")
        }
        req.Author = uid
    }

    b := model.Blog{
        AuthorID: req.Author,
        Title:    req.Title,
        Content:  req.Content,
        Summary:  req.Summary,
        Tags:     req.Tags,
        Category: req.Category,
    }
    ctx, cancel := dbCtx(c)
    defer cancel()
    if err := h.Blogs.Create(ctx, &b); err != nil {
        if errors.Is(err, repository.ErrInvalidReference) {
            return msg(c, http.StatusNotFound, "Author not found")
        }
        return internalError(c, err)
    }
    created, err := h.Blogs.GetByID(ctx, b.ID)
    if err != nil {
        return internalError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"message": "Blog created successfully", "blog": created})
}

// GetAll lists posts with their authors.
func (h *BlogHandler) GetAll(c echo.Context) error {
    ctx, cancel := dbCtx(c)
    defer cancel()
    blogs, err := h.Blogs.List(ctx)
    if err != nil {
        return internalError(c, err)
    }
    return c.JSON(http.StatusOK, blogs)
}

// GetByID returns one post and counts the view.
func (h *BlogHandler) GetByID(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return msg(c, http.StatusBadRequest, "Invalid blog id")
    }
    ctx, cancel := dbCtx(c)
    defer cancel()
    if err := h.Blogs.IncrementViews(ctx, id); err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return msg(c, http.StatusNotFound, "Blog not found")
        }
        return internalError(c, err)
    }
    b, err := h.Blogs.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return msg(c, http.StatusNotFound, "Blog not found")
        }
        return internalError(c, err)
    }
    return c.JSON(http.StatusOK, b)
}

// Edit applies a partial update; omitted fields are kept.
func (h *BlogHandler) Edit(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return msg(c, http.StatusBadRequest, "Invalid blog id")
    }
    var patch model.BlogPatch
    if err := c.Bind(&patch); err != nil {
        return msg(c, http.StatusBadRequest, "Invalid request body")
    }
    if patch.Empty() {
        return msg(c, http.StatusBadRequest, "No fields to update")
    }
    for _, f := range []*string{patch.Title, patch.Content, patch.Category} {
        if f != nil && *f == "" {
            return msg(c, http.StatusBadRequest, "Title, content and category cannot be empty")
        }
    }
    ctx, cancel := dbCtx(c)
    defer cancel()
    b, err := h.Blogs.Update(ctx, id, patch)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return msg(c, http.StatusNotFound, "Blog not found")
        }
        return internalError(c, err)
    }
    return c.JSON(http.StatusOK, b)
}

// DeleteByID removes a post and its comments.
func (h *BlogHandler) DeleteByID(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return msg(c, http.StatusBadRequest, "Invalid blog id")
    }
    ctx, cancel := dbCtx(c)
    defer cancel()
    if err := h.Blogs.Delete(ctx, id); err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return msg(c, http.StatusNotFound, "Blog not found")
        }
        return internalError(c, err)
    }
    return msg(c, http.StatusOK, "Blog deleted successfully")
}
