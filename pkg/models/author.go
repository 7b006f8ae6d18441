package models

import (
	"github.com/uptrace/bun"
)

type Author struct {
	bun.BaseModel `bun:"table:authors,alias:a"`
	Ownership

	ID            int     `bun:",pk,nullzero" json:"id"`
	Name          string  `bun:",nullzero" json:"name"`
	Details       string  `json:"details"`
	ImageFilename *string `json:"image_filename"`
}
