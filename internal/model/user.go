package model

// User is an account able to join warehouses
type User struct {
	ID           string `json:"id" gorm:"type:uuid;primaryKey"`
	Username     string `json:"username" gorm:"column:login;type:text;not null"`
	PasswordHash string `json:"-" gorm:"column:password_hash;type:text;not null"`
	Role         string `json:"-" gorm:"type:text;not null;default:'user'"`
}

func (User) TableName() string { return "users" }

// PublicUser is the user shape returned to clients
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Public strips the credentials
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username}
}
