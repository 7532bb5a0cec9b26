package memory

import (
	"sync"
	"time"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

// InvoiceRepository — in-memory хранилище инвойсов по рецептам.
type InvoiceRepository struct {
	mu    sync.RWMutex
	items map[string]domain.PrescriptionInvoice

	// FulfillErr позволяет тестам смоделировать падение второго апдейта.
	FulfillErr error
}

// NewInvoiceRepository возвращает in-memory хранилище инвойсов.
func NewInvoiceRepository() *InvoiceRepository {
	return &InvoiceRepository{
		items: make(map[string]domain.PrescriptionInvoice),
	}
}

// Put сохраняет или перезаписывает инвойс (для тестов и сидирования).
func (r *InvoiceRepository) Put(invoice domain.PrescriptionInvoice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[invoice.ID] = invoice
}

// Get возвращает инвойс или ErrInvoiceNotFound.
func (r *InvoiceRepository) Get(id string) (domain.PrescriptionInvoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	invoice, ok := r.items[id]
	if !ok {
		return domain.PrescriptionInvoice{}, domain.ErrInvoiceNotFound
	}
	return invoice, nil
}

// Save перезаписывает инвойс, проверяя версию (optimistic locking).
func (r *InvoiceRepository) Save(invoice domain.PrescriptionInvoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[invoice.ID]
	if !ok {
		return domain.ErrInvoiceNotFound
	}
	if current.Version != invoice.Version {
		return domain.ErrOrderVersionConflict
	}
	invoice.Version++
	r.items[invoice.ID] = invoice
	return nil
}

// MarkPrescriptionFulfilled помечает связанный рецепт исполненным.
func (r *InvoiceRepository) MarkPrescriptionFulfilled(invoiceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FulfillErr != nil {
		return r.FulfillErr
	}
	invoice, ok := r.items[invoiceID]
	if !ok {
		return domain.ErrInvoiceNotFound
	}
	invoice.PrescriptionFulfilled = true
	invoice.UpdatedAt = time.Now().UTC()
	r.items[invoiceID] = invoice
	return nil
}

var _ domain.InvoiceRepository = (*InvoiceRepository)(nil)
