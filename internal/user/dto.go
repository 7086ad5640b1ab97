package user

type ActivateAccessDTO struct {
	Token    string `json:"token" validate:"required,uuid"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

type UsersResponse struct {
	Users []View `json:"users"`
}

type AccessResponse struct {
	ID        int64   `json:"id"`
	UserID    int64   `json:"userId"`
	Link      string  `json:"link"`
	ExpiresAt float64 `json:"expiresAt"`
}
