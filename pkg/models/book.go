package models

import (
	"github.com/uptrace/bun"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`
	Ownership

	ID            int     `bun:",pk,nullzero" json:"id"`
	Name          string  `bun:",nullzero" json:"name"`
	Content       string  `json:"content"`
	AuthorID      int     `bun:",nullzero" json:"author_id"`
	Author        *Author `bun:"rel:belongs-to,join:author_id=id" json:"author,omitempty"`
	ImageFilename *string `json:"image_filename"`
}
