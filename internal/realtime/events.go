package realtime

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Inbound event names.
const (
	EventOrderStatusUpdated    = "order_status_updated"
	EventNewOrder              = "new_order"
	EventServiceRequestUpdated = "service_request_updated"
	EventNewServiceRequest     = "new_service_request"
	EventPaymentStatusUpdated  = "payment_status_updated"
	EventRealTimeStats         = "real_time_stats"
	EventError                 = "error"
	EventConnectionStatus      = "connection_status"
)

// Outbound event names.
const (
	EventJoinOrderRoom        = "join_order_room"
	EventLeaveOrderRoom       = "leave_order_room"
	EventJoinTableRoom        = "join_table_room"
	EventUpdateOrderStatus    = "update_order_status"
	EventServiceRequest       = "service_request"
	EventUpdateServiceRequest = "update_service_request"
	EventGetRealTimeStats     = "get_real_time_stats"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TableNumber accepts a JSON number, string or null.
type TableNumber string

func (t *TableNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TableNumber(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = TableNumber(n.String())
	return nil
}

type OrderStatusUpdated struct {
	OrderID   int64  `json:"order_id"`
	NewStatus string `json:"new_status"`
}

type NewOrder struct {
	OrderID      int64           `json:"order_id"`
	CustomerName string          `json:"customer_name"`
	TableNumber  TableNumber     `json:"table_number"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	ItemCount    int             `json:"item_count"`
	Status       string          `json:"status"`
}

type ServiceRequestUpdated struct {
	RequestID int64  `json:"request_id"`
	NewStatus string `json:"new_status"`
}

type NewServiceRequest struct {
	RequestID    int64       `json:"request_id"`
	Type         string      `json:"type"`
	CustomerName string      `json:"customer_name"`
	TableNumber  TableNumber `json:"table_number"`
	Message      string      `json:"message"`
	Status       string      `json:"status"`
}

type PaymentStatusUpdated struct {
	PaymentID int64  `json:"payment_id"`
	NewStatus string `json:"new_status"`
}

type RealTimeStats struct {
	TotalOrders            int             `json:"total_orders"`
	PendingOrders          int             `json:"pending_orders"`
	CompletedOrders        int             `json:"completed_orders"`
	TotalRevenue           decimal.Decimal `json:"total_revenue"`
	PendingServiceRequests int             `json:"pending_service_requests"`
}

// ServerError is the payload of an inbound error event.
type ServerError struct {
	Message string `json:"message"`
}

// ConnectionChange is delivered to connection_status listeners on every
// state transition.
type ConnectionChange struct {
	State  State
	Reason string
}

type orderRoom struct {
	OrderID int64 `json:"order_id"`
}

type tableRoom struct {
	TableID int64 `json:"table_id"`
}

type updateOrderStatus struct {
	OrderID       int64  `json:"order_id"`
	Status        string `json:"status"`
	EstimatedTime *int   `json:"estimated_time"`
}

type serviceRequest struct {
	Type        string  `json:"type"`
	TableNumber *string `json:"table_number"`
	Message     string  `json:"message"`
}

type updateServiceRequest struct {
	RequestID int64  `json:"request_id"`
	Status    string `json:"status"`
}
