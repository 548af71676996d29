package model

import "time"

// ============================================================================
// DATABASE ENTITIES
// ============================================================================

// Shop is the catalogue entity served through the cache layer
type Shop struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name       string    `gorm:"type:varchar(128);not null" json:"name"`
	TypeID     int64     `gorm:"not null;index" json:"type_id"`
	Area       string    `gorm:"type:varchar(128)" json:"area"`
	Address    string    `gorm:"type:varchar(255)" json:"address"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	AvgPrice   int64     `json:"avg_price"`
	Score      int       `json:"score"`
	OpenHours  string    `gorm:"type:varchar(32)" json:"open_hours"`
	CreateTime time.Time `gorm:"autoCreateTime" json:"create_time"`
	UpdateTime time.Time `gorm:"autoUpdateTime" json:"update_time"`
}

// TableName sets the table name for GORM
func (Shop) TableName() string {
	return "shops"
}

// ============================================================================
// API DATA TRANSFER OBJECTS
// ============================================================================

// UpdateShopRequest is the body of a shop update
type UpdateShopRequest struct {
	Name      string  `json:"name" binding:"required"`
	TypeID    int64   `json:"type_id" binding:"required"`
	Area      string  `json:"area"`
	Address   string  `json:"address"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	AvgPrice  int64   `json:"avg_price"`
	Score     int     `json:"score"`
	OpenHours string  `json:"open_hours"`
}

// ToShop converts the request into an entity with the given id
func (r *UpdateShopRequest) ToShop(id int64) *Shop {
	return &Shop{
		ID:        id,
		Name:      r.Name,
		TypeID:    r.TypeID,
		Area:      r.Area,
		Address:   r.Address,
		X:         r.X,
		Y:         r.Y,
		AvgPrice:  r.AvgPrice,
		Score:     r.Score,
		OpenHours: r.OpenHours,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
