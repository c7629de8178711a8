package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/blog-platform/internal/model"
    "github.com/iliyamo/blog-platform/internal/repository"
)

// CommentHandler serves comments attached to blog posts.
type CommentHandler struct {
    Comments *repository.CommentRepo
    Blogs    *repository.BlogRepo
}

func NewCommentHandler(comments *repository.CommentRepo, blogs *repository.BlogRepo) *CommentHandler {
    return &CommentHandler{Comments: comments, Blogs: blogs}
}

type commentAddReq struct {
    BlogID  uint64 `json:"blogId" validate:"required"`
    UserID  uint64 `json:"userId"`
    Content string `json:"content" validate:"required"`
}

// Add attaches a comment to a blog.  The writer defaults to the caller.
func (h *CommentHandler) Add(c echo.Context) error {
    var req commentAddReq
    if err := c.Bind(&req); err != nil {
        return msg(c, http.StatusBadRequest, "Invalid request body")
    }
    if err := c.Validate(&req); err != nil {
        return msg(c, http.StatusBadRequest, "blogId and content are required")
    }
    if req.UserID == 0 {
        uid, err := getUserID(c)
        if err != nil {
            return msg(c, http.StatusUnauthorized, "Invalid token")
        }
        req.UserID = uid
    }

    ctx, cancel := dbCtx(c)
    defer cancel()
    ok, err := h.Blogs.Exists(ctx, req.BlogID)
    if err != nil {
        return internalError(c, err)
    }
    if !ok {
        return msg(c, http.StatusNotFound, "Blog not found")
    }

    cm := model.Comment{BlogID: req.BlogID, UserID: req.UserID, Content: req.Content}
    if err := h.Comments.Create(ctx, &cm); err != nil {
        if errors.Is(err, repository.ErrInvalidReference) {
            // the blog was checked above, so the writer is missing
            return msg(c, http.StatusNotFound, "User not found")
        }
        return internalError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"message": "Comment added successfully", "comment": cm})
}

// GetByBlog lists a blog's comments oldest first with their writers.
func (h *CommentHandler) GetByBlog(c echo.Context) error {
    blogID, ok := parseID(c, "blogId")
    if !ok {
        return msg(c, http.StatusBadRequest, "Invalid blog id")
    }
    ctx, cancel := dbCtx(c)
    defer cancel()
    comments, err := h.Comments.ListByBlog(ctx, blogID)
    if err != nil {
        return internalError(c, err)
    }
    return c.JSON(http.StatusOK, comments)
}

// Delete removes one comment.
func (h *CommentHandler) Delete(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return msg(c, http.StatusBadRequest, "Invalid comment id")
    }
    ctx, cancel := dbCtx(c)
    defer cancel()
    if err := h.Comments.Delete(ctx, id); err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return msg(c, http.StatusNotFound, "Comment not found")
        }
        return internalError(c, err)
    }
    return msg(c, http.StatusOK, "Comment deleted successfully")
}
