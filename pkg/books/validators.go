package books

import "mime/multipart"

type ListBooksQuery struct {
	Limit  int     `query:"limit" json:"limit,omitempty" default:"24" validate:"min=1,max=100"`
	Offset int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Author *int    `query:"author" json:"author,omitempty" validate:"omitempty,min=1"`
	Search *string `query:"search" json:"search,omitempty" validate:"omitempty,max=100"`
}

// CreateBookPayload is accepted as JSON or as a multipart form with an
// optional "image" file.
type CreateBookPayload struct {
	Name      string                           `json:"name" form:"name" mod:"trim" validate:"required,max=255"`
	Content   string                           `json:"content" form:"content"`
	AuthorID  int                              `json:"author_id" form:"author_id" validate:"required,min=1"`
	FormFiles map[string]*multipart.FileHeader `json:"-" form:"-"`
}

type UpdateBookPayload struct {
	Name      *string                          `json:"name,omitempty" form:"name" validate:"omitempty,max=255"`
	Content   *string                          `json:"content,omitempty" form:"content"`
	AuthorID  *int                             `json:"author_id,omitempty" form:"author_id" validate:"omitempty,min=1"`
	FormFiles map[string]*multipart.FileHeader `json:"-" form:"-"`
}
