package enum

// ── Group A: State machines (owned by the server, mirrored here) ──

const (
	OrderStatusNew       = "new"
	OrderStatusConfirmed = "confirmed"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusDelivered = "delivered"
	OrderStatusCompleted = "completed"
)

const ServiceRequestPending = "pending"

const MenuItemAvailable = "available"

// OrderProgress returns the progress bar width (percent) for an order status.
// Unknown statuses sit on the first step.
func OrderProgress(status string) int {
	step := 1
	switch status {
	case OrderStatusNew:
		step = 1
	case OrderStatusConfirmed:
		step = 2
	case OrderStatusPreparing:
		step = 3
	case OrderStatusReady:
		step = 4
	case OrderStatusDelivered, OrderStatusCompleted:
		step = 5
	}
	return step * 20
}

// ── Group B: Notification levels ──

const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelDanger  = "danger"
)
