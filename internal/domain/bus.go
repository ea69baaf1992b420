package domain

// MessageBus decouples channels from the agent loop. Channels publish
// inbound messages and register a handler for their outbound traffic.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channelName string, handler func(OutboundMessage))
	Close()
}
