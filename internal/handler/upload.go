package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/blog-platform/internal/storage"
)

// UploadHandler accepts general attachments (images and PDFs).
type UploadHandler struct {
    Uploads *storage.Uploads
}

func NewUploadHandler(u *storage.Uploads) *UploadHandler { return &UploadHandler{Uploads: u} }

// Upload stores the multipart "file" field and returns its served path.
func (h *UploadHandler) Upload(c echo.Context) error {
    fh, err := c.FormFile("file")
    if err != nil {
        return msg(c, http.StatusBadRequest, "No file uploaded")
    }
    path, err := h.Uploads.Save(fh, storage.ImagesAndPDF)
    if err != nil {
        if errors.Is(err, storage.ErrUnsupportedMediaType) {
            return msg(c, http.StatusUnsupportedMediaType, "Only images and PDFs are allowed!")
        }
        return internalError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "File uploaded successfully", "filePath": path})
}
