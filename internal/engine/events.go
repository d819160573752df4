package engine

// Queue names for engine events. Emergency withdrawals get their own queue
// so operational incidents never mix with ordinary event traffic.
const (
	QueueCreationEvents  = "creditline_creation_events"
	QueueRebalanceEvents = "creditline_rebalance_events"
	QueueAccrualCommands = "creditline_accrual_commands"
	QueueEmergencyAudit  = "creditline_emergency_audit"
)

// Publisher publishes engine events to a message queue.
type Publisher interface {
	Publish(queueName string, message interface{}) error
}

// AccrualCommand asks the worker to accrue interest on a credit line.
// ElapsedSeconds is the interval since the line's last accrual at publish
// time.
type AccrualCommand struct {
	Token          string `json:"token"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
}

// Due reports whether the command carries a positive accrual interval.
// Commands with nothing elapsed are acknowledged without an accrual call.
func (c AccrualCommand) Due() bool {
	return c.ElapsedSeconds > 0
}
