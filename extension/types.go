// Package extension maintains the payload type registry used to decode
// archived messages back into their concrete Go types.
package extension

import (
	"reflect"
	"strings"

	"github.com/viant/x"

	"github.com/viant/docuflow/model"
)

// Types wraps an x.Registry and resolves payload types by message type or by
// short type name.
type Types struct {
	x.Registry
	byMessage map[model.MessageType]*x.Type
}

// Register adds a payload type to the registry.
func (t *Types) Register(dataType *x.Type) {
	t.Registry.Register(dataType)
}

// Bind associates a message type with a payload type so archives can decode
// a message's payload knowing only its message type.
func (t *Types) Bind(messageType model.MessageType, dataType *x.Type) {
	t.Register(dataType)
	t.byMessage[messageType] = dataType
}

// PayloadType returns the payload type bound to the message type.
func (t *Types) PayloadType(messageType model.MessageType) (*x.Type, bool) {
	dataType, ok := t.byMessage[messageType]
	return dataType, ok
}

// Lookup returns a registered type by name; a "[]" prefix yields the slice
// type.
func (t *Types) Lookup(dataType string) *x.Type {
	sliceOf := strings.HasPrefix(dataType, "[]")
	if sliceOf {
		dataType = dataType[2:]
	}
	ret := t.Registry.Lookup(dataType)
	if ret == nil {
		return nil
	}
	if sliceOf {
		return x.NewType(reflect.SliceOf(ret.Type))
	}
	return ret
}

// NewTypes creates a registry pre-populated with every message payload type.
func NewTypes(options ...x.RegistryOption) *Types {
	result := &Types{
		Registry:  *x.NewRegistry(options...),
		byMessage: make(map[model.MessageType]*x.Type),
	}
	result.Bind(model.MessageTypeTaskAssigned, x.NewType(reflect.TypeOf(model.TaskAssignment{})))
	result.Bind(model.MessageTypeTaskStarted, x.NewType(reflect.TypeOf(model.TaskCompletion{})))
	result.Bind(model.MessageTypeTaskCompleted, x.NewType(reflect.TypeOf(model.TaskCompletion{})))
	result.Bind(model.MessageTypeTaskUnrecoverable, x.NewType(reflect.TypeOf(model.TaskFailure{})))
	result.Bind(model.MessageTypeAnomalyRaised, x.NewType(reflect.TypeOf(model.Finding{})))
	result.Bind(model.MessageTypeWorkflowCompleted, x.NewType(reflect.TypeOf(model.WorkflowOutcome{})))
	result.Bind(model.MessageTypeHumanFeedback, x.NewType(reflect.TypeOf(model.Feedback{})))
	result.Bind(model.MessageTypeEscalatedForReview, x.NewType(reflect.TypeOf(model.Escalation{})))
	result.Bind(model.MessageTypeLearningSample, x.NewType(reflect.TypeOf(model.LearningSample{})))
	result.Bind(model.MessageTypeDeliveryFailed, x.NewType(reflect.TypeOf(model.Message{})))
	result.Bind(model.MessageTypeHeartbeat, x.NewType(reflect.TypeOf(model.Heartbeat{})))
	return result
}
