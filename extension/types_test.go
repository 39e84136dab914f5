package extension

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viant/docuflow/model"
)

func TestTypes_PayloadType(t *testing.T) {
	types := NewTypes()

	payloadType, ok := types.PayloadType(model.MessageTypeTaskCompleted)
	assert.True(t, ok)
	assert.Equal(t, reflect.TypeOf(model.TaskCompletion{}), payloadType.Type)

	_, ok = types.PayloadType("unknown.type")
	assert.False(t, ok)
}

func TestTypes_Lookup(t *testing.T) {
	types := NewTypes()

	ret := types.Lookup("TaskAssignment")
	if !assert.NotNil(t, ret) {
		return
	}
	assert.Equal(t, reflect.TypeOf(model.TaskAssignment{}), ret.Type)

	sliceOf := types.Lookup("[]Finding")
	if !assert.NotNil(t, sliceOf) {
		return
	}
	assert.Equal(t, reflect.Slice, sliceOf.Type.Kind())

	assert.Nil(t, types.Lookup("Missing"))
}
