package shipping

import (
	"strings"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
	"github.com/ankitchauhan1221/maluk-backend/internal/order"
)

// WebhookPayload is the tracking notification pushed by the carrier. One
// payload carries a shipment identifier plus a batch of scan events.
type WebhookPayload struct {
	Shipment struct {
		ShipmentNo string `json:"strShipmentNo"`
	} `json:"shipment"`
	ShipmentStatus []WebhookEvent `json:"shipmentStatus"`
}

type WebhookEvent struct {
	Action     string `json:"strAction"`
	ActionDesc string `json:"strActionDesc"`
	Origin     string `json:"strOrigin"`
	ActionDate string `json:"strActionDate"`
	ActionTime string `json:"strActionTime"`
	Remarks    string `json:"strRemarks"`
	Latitude   string `json:"strLatitude"`
	Longitude  string `json:"strLongitude"`
}

// Updates converts the payload's scan events into tracking updates, skipping
// events with no action code.
func (p *WebhookPayload) Updates() ([]order.TrackingUpdate, error) {
	if strings.TrimSpace(p.Shipment.ShipmentNo) == "" {
		return nil, apperr.New(apperr.KindValidation, "missing shipment number")
	}
	if len(p.ShipmentStatus) == 0 {
		return nil, apperr.New(apperr.KindValidation, "missing shipment status events")
	}

	updates := make([]order.TrackingUpdate, 0, len(p.ShipmentStatus))
	for _, ev := range p.ShipmentStatus {
		action := strings.ToUpper(strings.TrimSpace(ev.Action))
		if action == "" {
			continue
		}
		updates = append(updates, order.TrackingUpdate{
			Action:     action,
			ActionDesc: ev.ActionDesc,
			Origin:     ev.Origin,
			ActionDate: ev.ActionDate,
			ActionTime: ev.ActionTime,
			Remarks:    ev.Remarks,
			Latitude:   ev.Latitude,
			Longitude:  ev.Longitude,
		})
	}
	if len(updates) == 0 {
		return nil, apperr.New(apperr.KindValidation, "no usable tracking events")
	}
	return updates, nil
}
