package authors

import "mime/multipart"

type ListAuthorsQuery struct {
	Limit  int     `query:"limit" json:"limit,omitempty" default:"24" validate:"min=1,max=100"`
	Offset int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Search *string `query:"search" json:"search,omitempty" validate:"omitempty,max=100"`
}

// CreateAuthorPayload is accepted as JSON or as a multipart form with an
// optional "image" file.
type CreateAuthorPayload struct {
	Name      string                           `json:"name" form:"name" mod:"trim" validate:"required,max=255"`
	Details   string                           `json:"details" form:"details" mod:"trim"`
	FormFiles map[string]*multipart.FileHeader `json:"-" form:"-"`
}

type UpdateAuthorPayload struct {
	Name      *string                          `json:"name,omitempty" form:"name" validate:"omitempty,max=255"`
	Details   *string                          `json:"details,omitempty" form:"details"`
	FormFiles map[string]*multipart.FileHeader `json:"-" form:"-"`
}
