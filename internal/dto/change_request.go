package dto

// CancellationChangeRequest asks the counter-party to cancel a reservation.
type CancellationChangeRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// EditChangeRequest proposes new scheduling values. At least one field must be set.
type EditChangeRequest struct {
	NewDate     *string `json:"newDate" validate:"omitempty,datetime=2006-01-02"`
	NewTime     *string `json:"newTime" validate:"omitempty,max=64"`
	NewLocation *string `json:"newLocation" validate:"omitempty,max=255"`
	Reason      string  `json:"reason" validate:"required,max=1000"`
}

// ResolveChangeRequest carries the responder note for approve/reject.
type ResolveChangeRequest struct {
	Note *string `json:"note" validate:"omitempty,max=1000"`
}
