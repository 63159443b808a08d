// Package domain holds the business entities the dashboard renders and the
// cache namespace layout shared by the consumers and the invalidation
// router.
package domain

import "time"

// Order is one customer order as the admin dashboard sees it.
type Order struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	RiderID    string    `json:"riderId,omitempty"`
	Status     string    `json:"status"`
	TotalCents int64     `json:"totalCents"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// OrderFilters narrows an order list query. The zero value means no filter.
type OrderFilters struct {
	Status string `json:"status,omitempty"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// Rider is one delivery rider.
type Rider struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RiderFilters narrows a rider list query.
type RiderFilters struct {
	Status string `json:"status,omitempty"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// KYCSubmission is a rider identity-verification submission.
type KYCSubmission struct {
	ID          string    `json:"id"`
	RiderID     string    `json:"riderId"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Ticket is one support ticket.
type Ticket struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	UserID    string    `json:"userId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TicketMessage is one entry in a ticket conversation.
type TicketMessage struct {
	ID       string    `json:"id"`
	TicketID string    `json:"ticketId"`
	Author   string    `json:"author"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sentAt"`
}

// TicketFilters narrows a ticket list query.
type TicketFilters struct {
	Status string `json:"status,omitempty"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// Page is a generic paginated response from the read endpoints.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// DashboardStats is the headline tile data on the landing view.
type DashboardStats struct {
	ActiveOrders   int   `json:"activeOrders"`
	OnlineRiders   int   `json:"onlineRiders"`
	OpenTickets    int   `json:"openTickets"`
	PendingKYC     int   `json:"pendingKyc"`
	RevenueCents   int64 `json:"revenueCents"`
	CompletedToday int   `json:"completedToday"`
}

// OrderStats backs the order volume charts.
type OrderStats struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

// RiderStats backs the rider availability charts.
type RiderStats struct {
	Online   int `json:"online"`
	OnTrip   int `json:"onTrip"`
	Offline  int `json:"offline"`
	AwaitKYC int `json:"awaitKyc"`
}

// PaymentStats backs the payments chart.
type PaymentStats struct {
	CompletedCents int64 `json:"completedCents"`
	RefundedCents  int64 `json:"refundedCents"`
	Count          int   `json:"count"`
}

// SupportStats backs the support workload chart.
type SupportStats struct {
	Open     int `json:"open"`
	Pending  int `json:"pending"`
	Resolved int `json:"resolved"`
}
