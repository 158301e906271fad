package domain

// Image is one reference served to the display surface.
type Image struct {
	URL      string   `json:"imageUrl"`
	Category string   `json:"category"`
	Provider Provider `json:"provider"`
}
