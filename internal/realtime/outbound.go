package realtime

// Outbound actions are dropped unless the client is connected.

func (c *Client) JoinOrderRoom(orderID int64) {
	c.send(EventJoinOrderRoom, orderRoom{OrderID: orderID})
}

func (c *Client) LeaveOrderRoom(orderID int64) {
	c.send(EventLeaveOrderRoom, orderRoom{OrderID: orderID})
}

func (c *Client) JoinTableRoom(tableID int64) {
	c.send(EventJoinTableRoom, tableRoom{TableID: tableID})
}

// UpdateOrderStatus asks the server to move an order. estimatedMinutes may be
// nil.
func (c *Client) UpdateOrderStatus(orderID int64, status string, estimatedMinutes *int) {
	c.send(EventUpdateOrderStatus, updateOrderStatus{
		OrderID:       orderID,
		Status:        status,
		EstimatedTime: estimatedMinutes,
	})
}

// SendServiceRequest raises a service request. An empty table is sent as null.
func (c *Client) SendServiceRequest(kind, table, message string) {
	p := serviceRequest{Type: kind, Message: message}
	if table != "" {
		p.TableNumber = &table
	}
	c.send(EventServiceRequest, p)
}

func (c *Client) UpdateServiceRequestStatus(requestID int64, status string) {
	c.send(EventUpdateServiceRequest, updateServiceRequest{RequestID: requestID, Status: status})
}

// RequestStats asks the server for a real_time_stats snapshot.
func (c *Client) RequestStats() {
	c.send(EventGetRealTimeStats, nil)
}
