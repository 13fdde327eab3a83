package bus

// Topic names an event on the bus.
type Topic string

// Inbound triggers. The engine reacts to these but does not define their producers.
const (
	CustomerArrived   Topic = "customer:arrived"
	InventoryLowStock Topic = "inventory:lowStock"
	StoreOpened       Topic = "store:opened"
	DecisionRequired  Topic = "decision:required"
)

// Outbound notifications published by the automation modules.
const (
	CashierTransactionStarted   Topic = "cashier:transactionStarted"
	CashierConversation         Topic = "cashier:conversation"
	CashierTransactionCompleted Topic = "cashier:transactionCompleted"
	CashierEscalation           Topic = "cashier:escalation"

	InventoryStatusUpdate     Topic = "inventory:statusUpdate"
	InventoryRestockOrdered   Topic = "inventory:restockOrdered"
	InventoryDeliveryReceived Topic = "inventory:deliveryReceived"
	InventoryDailyAnalysis    Topic = "inventory:dailyAnalysis"

	AdvisorRecommendation   Topic = "aiAssistant:recommendation"
	AdvisorPeriodicAnalysis Topic = "aiAssistant:periodicAnalysis"

	AutomationEnabled           Topic = "automation:enabled"
	AutomationDisabled          Topic = "automation:disabled"
	AutomationConfigured        Topic = "automation:configured"
	AutomationEmergencyShutdown Topic = "automation:emergencyShutdown"
	AutomationMetricsUpdated    Topic = "automation:metricsUpdated"
)

// OutboundTopics lists every topic published by the automation modules.
func OutboundTopics() []Topic {
	return []Topic{
		CashierTransactionStarted, CashierConversation, CashierTransactionCompleted, CashierEscalation,
		InventoryStatusUpdate, InventoryRestockOrdered, InventoryDeliveryReceived, InventoryDailyAnalysis,
		AdvisorRecommendation, AdvisorPeriodicAnalysis,
		AutomationEnabled, AutomationDisabled, AutomationConfigured, AutomationEmergencyShutdown, AutomationMetricsUpdated,
	}
}
