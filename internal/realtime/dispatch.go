package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/kiwari-pos/client/internal/enum"
	"github.com/kiwari-pos/client/internal/ui"
)

// On registers fn for event. Listeners run in registration order; a
// panicking listener is logged and does not stop the others.
func (c *Client) On(event string, fn Listener) ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.listeners[event] = append(c.listeners[event], listener{id: c.nextID, fn: fn})
	return c.nextID
}

// Off removes a listener and reports whether it was registered.
func (c *Client) Off(event string, id ListenerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := c.listeners[event]
	for i, l := range ls {
		if l.id == id {
			c.listeners[event] = append(ls[:i:i], ls[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Client) OnOrderStatusUpdated(fn func(OrderStatusUpdated)) ListenerID {
	return c.On(EventOrderStatusUpdated, func(p any) {
		if v, ok := p.(OrderStatusUpdated); ok {
			fn(v)
		}
	})
}

func (c *Client) OnNewOrder(fn func(NewOrder)) ListenerID {
	return c.On(EventNewOrder, func(p any) {
		if v, ok := p.(NewOrder); ok {
			fn(v)
		}
	})
}

func (c *Client) OnServiceRequestUpdated(fn func(ServiceRequestUpdated)) ListenerID {
	return c.On(EventServiceRequestUpdated, func(p any) {
		if v, ok := p.(ServiceRequestUpdated); ok {
			fn(v)
		}
	})
}

func (c *Client) OnNewServiceRequest(fn func(NewServiceRequest)) ListenerID {
	return c.On(EventNewServiceRequest, func(p any) {
		if v, ok := p.(NewServiceRequest); ok {
			fn(v)
		}
	})
}

func (c *Client) OnPaymentStatusUpdated(fn func(PaymentStatusUpdated)) ListenerID {
	return c.On(EventPaymentStatusUpdated, func(p any) {
		if v, ok := p.(PaymentStatusUpdated); ok {
			fn(v)
		}
	})
}

func (c *Client) OnRealTimeStats(fn func(RealTimeStats)) ListenerID {
	return c.On(EventRealTimeStats, func(p any) {
		if v, ok := p.(RealTimeStats); ok {
			fn(v)
		}
	})
}

func (c *Client) OnConnectionChange(fn func(ConnectionChange)) ListenerID {
	return c.On(EventConnectionStatus, func(p any) {
		if v, ok := p.(ConnectionChange); ok {
			fn(v)
		}
	})
}

func (c *Client) emit(event string, payload any) {
	c.mu.Lock()
	ls := append([]listener(nil), c.listeners[event]...)
	c.mu.Unlock()

	for _, l := range ls {
		callListener(event, l.fn, payload)
	}
}

func callListener(event string, fn Listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("error in %s listener: %v", event, r)
		}
	}()
	fn(payload)
}

func decodePayload(env Envelope, v any) bool {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		log.Printf("failed to parse %s payload: %v", env.Type, err)
		return false
	}
	return true
}

// handle applies one inbound frame to the dashboard, shows its notice and
// forwards the payload to listeners.
func (c *Client) handle(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		log.Printf("failed to parse real-time message: %v", err)
		return
	}

	switch env.Type {
	case EventOrderStatusUpdated:
		var p OrderStatusUpdated
		if !decodePayload(env, &p) {
			return
		}
		c.view.SetOrderStatus(p.OrderID, p.NewStatus)
		c.notice(enum.LevelInfo, fmt.Sprintf("Order #%d is now %s", p.OrderID, p.NewStatus))
		c.emit(env.Type, p)

	case EventNewOrder:
		var p NewOrder
		if !decodePayload(env, &p) {
			return
		}
		c.view.AddOrder(ui.Order{
			ID:           p.OrderID,
			CustomerName: p.CustomerName,
			TableNumber:  string(p.TableNumber),
			Total:        p.TotalAmount,
			ItemCount:    p.ItemCount,
			Status:       p.Status,
		})
		c.notice(enum.LevelSuccess, fmt.Sprintf("New order #%d from %s", p.OrderID, p.CustomerName))
		c.view.Chime()
		c.emit(env.Type, p)

	case EventServiceRequestUpdated:
		var p ServiceRequestUpdated
		if !decodePayload(env, &p) {
			return
		}
		c.view.SetRequestStatus(p.RequestID, p.NewStatus)
		c.notice(enum.LevelInfo, fmt.Sprintf("Service request #%d is now %s", p.RequestID, p.NewStatus))
		c.emit(env.Type, p)

	case EventNewServiceRequest:
		var p NewServiceRequest
		if !decodePayload(env, &p) {
			return
		}
		if p.Status == "" {
			p.Status = enum.ServiceRequestPending
		}
		c.view.AddRequest(ui.ServiceRequest{
			ID:           p.RequestID,
			Type:         p.Type,
			CustomerName: p.CustomerName,
			TableNumber:  string(p.TableNumber),
			Message:      p.Message,
			Status:       p.Status,
		})
		table := string(p.TableNumber)
		if table == "" {
			table = "N/A"
		}
		c.notice(enum.LevelWarning, fmt.Sprintf("New service request: %s (Table %s)", p.Type, table))
		c.view.Chime()
		c.emit(env.Type, p)

	case EventPaymentStatusUpdated:
		var p PaymentStatusUpdated
		if !decodePayload(env, &p) {
			return
		}
		if !c.view.SetPaymentStatus(p.PaymentID, p.NewStatus) && c.trackPayments {
			c.view.TrackPayment(p.PaymentID, p.NewStatus)
		}
		c.notice(enum.LevelInfo, fmt.Sprintf("Payment #%d is now %s", p.PaymentID, p.NewStatus))
		c.emit(env.Type, p)

	case EventRealTimeStats:
		var p RealTimeStats
		if !decodePayload(env, &p) {
			return
		}
		c.view.SetStat(ui.StatTotalOrders, strconv.Itoa(p.TotalOrders))
		c.view.SetStat(ui.StatPendingOrders, strconv.Itoa(p.PendingOrders))
		c.view.SetStat(ui.StatCompletedOrders, strconv.Itoa(p.CompletedOrders))
		c.view.SetStat(ui.StatTotalRevenue, "$"+p.TotalRevenue.StringFixed(2))
		c.view.SetStat(ui.StatPendingServiceRequests, strconv.Itoa(p.PendingServiceRequests))
		c.emit(env.Type, p)

	case EventError:
		var p ServerError
		if !decodePayload(env, &p) {
			return
		}
		log.Printf("real-time server error: %s", p.Message)
		c.notice(enum.LevelError, p.Message)
		c.emit(env.Type, p)

	case EventConnectionStatus:
		// Server-side view of the session, logged only
		log.Printf("connection status: %s", env.Payload)

	default:
		log.Printf("unknown real-time event: %s", env.Type)
		c.emit(env.Type, env.Payload)
	}
}
