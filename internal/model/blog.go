package model

import "time"

// Blog represents a post in the `blogs` table.  Author is populated from
// the users table on reads and left nil on writes.
type Blog struct {
    ID        uint64    `json:"id"`                // blogs.id
    AuthorID  uint64    `json:"authorId"`          // blogs.author_id
    Author    *UserRef  `json:"author,omitempty"`  // joined users row
    Title     string    `json:"title"`             // blogs.title
    Content   string    `json:"content"`           // blogs.content
    Summary   string    `json:"summary,omitempty"` // blogs.summary (nullable)
    Tags      []string  `json:"tags"`              // blogs.tags (JSON array)
    Category  string    `json:"category"`          // blogs.category
    Views     uint64    `json:"views"`             // blogs.views
    CreatedAt time.Time `json:"createdAt"`         // blogs.created_at
    UpdatedAt time.Time `json:"updatedAt"`         // blogs.updated_at
}

// BlogPatch carries a partial update; nil fields are left untouched.
type BlogPatch struct {
    Title    *string   `json:"title"`
    Content  *string   `json:"content"`
    Summary  *string   `json:"summary"`
    Tags     *[]string `json:"tags"`
    Category *string   `json:"category"`
}

// Empty reports whether the patch changes nothing.
func (p BlogPatch) Empty() bool {
    return p.Title == nil && p.Content == nil && p.Summary == nil && p.Tags == nil && p.Category == nil
}
