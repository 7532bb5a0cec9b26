package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет шапку заказа вместе с позициями атомарно.
	// Возвращает ошибку, если запись с таким ID или Number уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// GetByNumber возвращает заказ по человекочитаемому номеру (receipt).
	GetByNumber(number string) (Order, error)
	// ListByUser возвращает заказы покупателя с опциональным лимитом.
	ListByUser(userID string, limit int) ([]Order, error)
	// ListStalePending возвращает online-заказы, зависшие в pending/pending
	// дольше порога; их подбирает reconciliation-свип.
	ListStalePending(before time.Time, limit int) ([]Order, error)
	// Save применяет обновления к шапке заказа с учётом optimistic locking.
	Save(order Order) error
}
