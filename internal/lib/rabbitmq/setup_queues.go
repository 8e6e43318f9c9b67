package rabbitmq

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notifications.expired", RoutingKey: "expired"},
		{QueueName: "notifications.expiring", RoutingKey: "expiring"},
	}
}
