package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viant/docuflow/model"
)

func TestPolicy_IsAllowed(t *testing.T) {
	var p *Policy
	assert.True(t, p.IsAllowed(model.DocumentTypeInvoice))

	p = &Policy{BlockTypes: []model.DocumentType{model.DocumentTypeLease}}
	assert.True(t, p.IsAllowed(model.DocumentTypeInvoice))
	assert.False(t, p.IsAllowed(model.DocumentTypeLease))

	p = &Policy{AllowTypes: []model.DocumentType{model.DocumentTypeInvoice}}
	assert.True(t, p.IsAllowed(model.DocumentTypeInvoice))
	assert.False(t, p.IsAllowed(model.DocumentTypeContract))

	// BlockTypes wins over AllowTypes
	p = &Policy{
		AllowTypes: []model.DocumentType{model.DocumentTypeInvoice},
		BlockTypes: []model.DocumentType{model.DocumentTypeInvoice},
	}
	assert.False(t, p.IsAllowed(model.DocumentTypeInvoice))

	p = &Policy{Mode: ModeDeny}
	assert.False(t, p.IsAllowed(model.DocumentTypeInvoice))
}

func TestPolicy_Admit(t *testing.T) {
	document := &model.Document{ID: "doc-1", Type: model.DocumentTypeInvoice}

	asked := 0
	p := &Policy{Mode: ModeAsk, Ask: func(ctx context.Context, doc *model.Document, p *Policy) bool {
		asked++
		return doc.Type == model.DocumentTypeInvoice
	}}
	assert.True(t, p.Admit(context.Background(), document))
	assert.Equal(t, 1, asked)
	assert.False(t, p.Admit(context.Background(), &model.Document{ID: "doc-2", Type: model.DocumentTypeLease}))
}

func TestPolicy_Context(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	p := &Policy{Mode: ModeAuto}
	ctx := WithPolicy(context.Background(), p)
	assert.Equal(t, p, FromContext(ctx))
}

func TestPolicy_ConfigRoundTrip(t *testing.T) {
	p := &Policy{Mode: ModeDeny, AllowTypes: []model.DocumentType{model.DocumentTypeInvoice}}
	restored := FromConfig(ToConfig(p))
	assert.Equal(t, p.Mode, restored.Mode)
	assert.Equal(t, p.AllowTypes, restored.AllowTypes)
	assert.Nil(t, ToConfig(nil))
	assert.Nil(t, FromConfig(nil))
}
