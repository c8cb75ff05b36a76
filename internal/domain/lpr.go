package domain

// LPRResponseDTO is returned by the plate recognition endpoint.
type LPRResponseDTO struct {
	PlateNumber  string `json:"plate_number,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	ErrorMessage string `json:"message,omitempty"`
}

// GateEvent is the body of a gate message on the events queue.
type GateEvent struct {
	Type          string `json:"type"` // "entry" or "exit"
	SpotID        string `json:"spot_id"`
	UserID        string `json:"user_id"`
	Plate         string `json:"plate"`
	PaymentMethod string `json:"payment_method,omitempty"`
}
