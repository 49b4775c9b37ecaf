package models

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string `gorm:"not null"                 json:"name"`
	Email        string `gorm:"unique;not null"          json:"email"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null"                 json:"role"`
	NPM          string `json:"npm"`
	Phone        string `json:"phone"`
}

type Product struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"  json:"id"`
	Name        string  `gorm:"not null"                  json:"name"`
	Description string  `gorm:"not null"                  json:"description"`
	Price       float64 `gorm:"not null"                  json:"price"`
	Count       uint    `json:"count"`
	ImageURL    string  `json:"image_url"`
}

type CartItem struct {
	ID        uint `gorm:"primaryKey"                  json:"id"`
	UserID    uint `gorm:"index;not null"              json:"user_id"`
	ProductID uint `gorm:"not null"                    json:"product_id"`
	Quantity  uint `gorm:"default:1;check:quantity>0"  json:"quantity"`
}

type Order struct {
	ID        uint    `gorm:"primaryKey"     json:"id"`
	UserID    uint    `gorm:"index;not null" json:"user_id"`
	CreatedAt int64   `gorm:"not null"       json:"created_at"`
	Total     float64 `gorm:"not null"       json:"total"`
	Status    string  `gorm:"not null"       json:"status"`
}

type OrderItem struct {
	ID        uint `gorm:"primaryKey"                  json:"id"`
	OrderID   uint `gorm:"index;not null"              json:"order_id"`
	UserID    uint `gorm:"index;not null"              json:"user_id"`
	ProductID uint `gorm:"not null"                    json:"product_id"`
	Quantity  uint `gorm:"default:1;check:quantity>0"  json:"quantity"`
}
