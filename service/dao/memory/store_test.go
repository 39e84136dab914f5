package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viant/docuflow/model"
	"github.com/viant/docuflow/service/dao"
)

func newDocumentStore() *Store[string, model.Document] {
	return New(
		func(document *model.Document) string { return document.ID },
		WithAttribute[string, model.Document](func(document *model.Document, name string) (string, bool) {
			if name == "Type" {
				return string(document.Type), true
			}
			return "", false
		}),
	)
}

func TestStore_SaveLoadDelete(t *testing.T) {
	store := newDocumentStore()
	ctx := context.Background()

	err := store.Save(ctx, nil)
	assert.ErrorIs(t, err, dao.ErrNilEntity)
	err = store.Save(ctx, &model.Document{})
	assert.ErrorIs(t, err, dao.ErrInvalidID)

	document := &model.Document{ID: "doc-1", Type: model.DocumentTypeInvoice}
	assert.Nil(t, store.Save(ctx, document))

	loaded, err := store.Load(ctx, "doc-1")
	assert.Nil(t, err)
	assert.Equal(t, document, loaded)

	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, dao.ErrNotFound)

	assert.Nil(t, store.Delete(ctx, "doc-1"))
	assert.ErrorIs(t, store.Delete(ctx, "doc-1"), dao.ErrNotFound)
}

func TestStore_ListFilters(t *testing.T) {
	store := newDocumentStore()
	ctx := context.Background()
	assert.Nil(t, store.Save(ctx, &model.Document{ID: "doc-1", Type: model.DocumentTypeInvoice}))
	assert.Nil(t, store.Save(ctx, &model.Document{ID: "doc-2", Type: model.DocumentTypeContract}))
	assert.Nil(t, store.Save(ctx, &model.Document{ID: "doc-3", Type: model.DocumentTypeInvoice}))

	all, err := store.List(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 3, len(all))

	invoices, err := store.List(ctx, dao.NewParameter("Type", "invoice"))
	assert.Nil(t, err)
	assert.Equal(t, 2, len(invoices))

	either, err := store.List(ctx, dao.NewParameter("Type", "invoice", "contract"))
	assert.Nil(t, err)
	assert.Equal(t, 3, len(either))

	// Unknown attributes never filter
	unknown, err := store.List(ctx, dao.NewParameter("Owner", "x"))
	assert.Nil(t, err)
	assert.Equal(t, 3, len(unknown))
}
