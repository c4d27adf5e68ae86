package events

// Event enumerates high-level topics inside the trading core.
type Event string

const (
	EventPriceTick      Event = "price.tick"
	EventSignalVerified Event = "signal.verified"
	EventSignalRejected Event = "signal.rejected"
	EventOrderSubmitted Event = "order.submitted"
	EventOrderReplaced  Event = "order.replaced"
	EventOrderFilled    Event = "order.filled"
	EventOrderRejected  Event = "order.rejected"
	EventRiskAlert      Event = "risk.alert"
	EventCooldownArmed  Event = "cooldown.armed"
)
