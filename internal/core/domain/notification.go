package domain

type NotificationKind string

const (
	NotificationTicketConfirmed NotificationKind = "ticket.confirmed"
	NotificationTicketRefunded  NotificationKind = "ticket.refunded"
)

type Notification struct {
	Kind       NotificationKind
	Recipient  Principal
	EventTitle string
	Ticket     Ticket
}
