package admin

type ListQuery struct {
	UserID *int `query:"user_id" json:"user_id,omitempty" validate:"omitempty,min=1"`
	Limit  int  `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=500"`
	Offset int  `query:"offset" json:"offset,omitempty" validate:"min=0"`
}
