package dto

// CreateShopRequest registers a shop.
type CreateShopRequest struct {
	Name  string `json:"name" binding:"required,max=200"`
	Route string `json:"route" binding:"max=100"`
}

// UpdateRouteRequest moves a shop to another route.
type UpdateRouteRequest struct {
	Route string `json:"route" binding:"required,max=100"`
}

// PayTomorrowRequest defers today's collection.
type PayTomorrowRequest struct {
	Note string `json:"note" binding:"max=500"`
}

// ShopListQuery filters the directory listing.
type ShopListQuery struct {
	IncludeRemoved bool `form:"includeRemoved"`
}

// HistoryQuery selects between the open cycle and the full history.
type HistoryQuery struct {
	All bool `form:"all"`
}
