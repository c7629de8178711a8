package model

import "time"

// Comment is a row of the `comments` table.  User is populated on list
// reads.
type Comment struct {
    ID        uint64    `json:"id"`             // comments.id
    BlogID    uint64    `json:"blogId"`         // comments.blog_id
    UserID    uint64    `json:"userId"`         // comments.user_id
    User      *UserRef  `json:"user,omitempty"` // joined users row
    Content   string    `json:"content"`        // comments.content
    CreatedAt time.Time `json:"createdAt"`      // comments.created_at
    UpdatedAt time.Time `json:"updatedAt"`      // comments.updated_at
}
