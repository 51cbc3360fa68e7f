package messaging

// KafkaEvent тип доменного события в заголовке event_type, значения см. models.EventType
type KafkaEvent = string

// Служебные заголовки сообщений
const (
	HeaderMessageID = "message_id"
	HeaderTimestamp = "timestamp"
	HeaderEventType = "event_type"
)
