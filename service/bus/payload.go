package bus

import (
	"fmt"

	"github.com/viant/docuflow/model"
	"github.com/viant/toolbox"
)

// PayloadAs returns the message payload as *T. Payloads published in-process
// arrive typed; payloads rehydrated from the audit archive arrive as generic
// maps and are converted.
func PayloadAs[T any](message *model.Message) (*T, error) {
	if message == nil || message.Payload == nil {
		return nil, fmt.Errorf("bus: message %v has no payload", messageID(message))
	}
	if typed, ok := message.Payload.(*T); ok {
		return typed, nil
	}
	if typed, ok := message.Payload.(T); ok {
		return &typed, nil
	}
	var out T
	if err := toolbox.DefaultConverter.AssignConverted(&out, message.Payload); err != nil {
		return nil, fmt.Errorf("bus: failed to convert payload of %s: %w", message.ID, err)
	}
	return &out, nil
}

func messageID(message *model.Message) string {
	if message == nil {
		return "<nil>"
	}
	return message.ID
}
