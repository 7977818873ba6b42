package order

// Carrier scan action codes.
const (
	ActionBooked         = "BKD"
	ActionPickedUp       = "PCUP"
	ActionOutForDelivery = "OUTDLV"
	ActionDelivered      = "DLV"
	ActionNotDelivered   = "NONDLV"
	ActionReturnToOrigin = "RTO"
	ActionReturned       = "RETURND"
	ActionCancelled      = "CAN"
)

// actionStatus maps carrier scan actions to order statuses. BKD is absent:
// a booking scan confirms the shipment exists but the order is still
// Processing, which is already set when the booking succeeds. Unknown actions
// are recorded in the tracking trail without touching the status.
var actionStatus = map[string]Status{
	ActionPickedUp:       StatusShipped,
	ActionOutForDelivery: StatusOutForDelivery,
	ActionDelivered:      StatusDelivered,
	ActionNotDelivered:   StatusFailed,
	ActionReturnToOrigin: StatusReturnToOrigin,
	ActionReturned:       StatusReturned,
	ActionCancelled:      StatusCancelled,
}

// StatusForAction resolves the order status implied by a carrier action code.
func StatusForAction(action string) (Status, bool) {
	s, ok := actionStatus[action]
	return s, ok
}
