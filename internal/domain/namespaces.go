package domain

import "github.com/deliverly/adminsync/internal/cache"

// Cache namespace layout. List namespaces are prefixes: every filtered or
// paged variant lives underneath, so invalidating the list root covers all
// of them. Stats share one root so a dashboard-wide refresh can invalidate
// them together.

func OrdersRoot() cache.Namespace  { return cache.NS("orders") }
func OrdersList() cache.Namespace  { return cache.NS("orders", "list") }
func OrderDetail(id string) cache.Namespace {
	return cache.NS("orders", "detail", id)
}

func RidersRoot() cache.Namespace { return cache.NS("riders") }
func RidersList() cache.Namespace { return cache.NS("riders", "list") }
func RiderDetail(id string) cache.Namespace {
	return cache.NS("riders", "detail", id)
}

func KYCRoot() cache.Namespace { return cache.NS("kyc") }
func KYCList() cache.Namespace { return cache.NS("kyc", "list") }

func TicketsRoot() cache.Namespace   { return cache.NS("tickets") }
func TicketsList() cache.Namespace   { return cache.NS("tickets", "list") }
func TicketDetails() cache.Namespace { return cache.NS("tickets", "detail") }
func TicketDetail(id string) cache.Namespace {
	return cache.NS("tickets", "detail", id)
}

func StatsRoot() cache.Namespace     { return cache.NS("stats") }
func DashboardStatsNS() cache.Namespace { return cache.NS("stats", "dashboard") }
func OrderStatsNS() cache.Namespace     { return cache.NS("stats", "orders") }
func RiderStatsNS() cache.Namespace     { return cache.NS("stats", "riders") }
func PaymentStatsNS() cache.Namespace   { return cache.NS("stats", "payments") }
func SupportStatsNS() cache.Namespace   { return cache.NS("stats", "support") }

// Roots returns the top-level namespaces, used for a dashboard-wide
// refresh.
func Roots() []cache.Namespace {
	return []cache.Namespace{
		OrdersRoot(), RidersRoot(), KYCRoot(), TicketsRoot(), StatsRoot(),
	}
}
