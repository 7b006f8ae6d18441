package users

type ListUsersQuery struct {
	Limit  int `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=500"`
	Offset int `query:"offset" json:"offset,omitempty" validate:"min=0"`
}

// UpdateUserPayload only touches the fields that are present.
type UpdateUserPayload struct {
	IsActive *bool `json:"is_active,omitempty"`
	IsAdmin  *bool `json:"is_admin,omitempty"`
}

type ResetPasswordPayload struct {
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}
