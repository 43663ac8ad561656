package model

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// LoginRequest accepts the email under either key; form clients send it as username.
type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Identifier() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Username
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type AdminDashboard struct {
	Message      string   `json:"message"`
	Admin        string   `json:"admin"`
	UserCount    int      `json:"user_count"`
	ReadingCount int64    `json:"reading_count"`
	Latest       *Reading `json:"latest,omitempty"`
}
