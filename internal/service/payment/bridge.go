package payment

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

// OutcomeKind перечисляет исходы одной попытки оплаты через виджет.
// Ровно один исход срабатывает на открытую сессию.
type OutcomeKind string

const (
	// OutcomeSucceeded — шлюз вернул payment id, gateway order id и подпись.
	OutcomeSucceeded OutcomeKind = "succeeded"
	// OutcomeDismissed — пользователь закрыл виджет, не заплатив. Это не
	// ошибка: заказ остаётся pending, submit снова доступен.
	OutcomeDismissed OutcomeKind = "dismissed"
	// OutcomeGatewayFailed — шлюз сообщил о неуспешной оплате с причиной.
	OutcomeGatewayFailed OutcomeKind = "gateway_failed"
)

// Outcome — единственный результат попытки оплаты.
type Outcome struct {
	Kind           OutcomeKind
	PaymentID      string
	GatewayOrderID string
	Signature      string
	Reason         string
}

var (
	// ErrBridgeNotReady — скрипт шлюза не загружен; открывать виджет нельзя,
	// submit должен оставаться заблокированным.
	ErrBridgeNotReady = errors.New("payment widget script is not loaded")
	// ErrAttemptResolved — по этой сессии исход уже зафиксирован.
	ErrAttemptResolved = errors.New("payment attempt already resolved")
)

// ScriptLoader загружает клиентский скрипт шлюза. Вызывается не более одного
// раза за время жизни Bridge.
type ScriptLoader func(ctx context.Context) error

// Bridge владеет загрузкой скрипта шлюза и открытием виджета. Скрипт — лениво
// инициализируемый singleton с readiness-результатом, который ждут все
// checkout-представления; голого глобального флага "уже загружен" здесь нет.
type Bridge struct {
	loader ScriptLoader
	logger *log.Entry

	loadOnce sync.Once
	loadErr  error

	mu   sync.Mutex
	open map[string]*Attempt
}

// NewBridge создаёт bridge с данным загрузчиком скрипта.
func NewBridge(loader ScriptLoader) *Bridge {
	return &Bridge{
		loader: loader,
		logger: log.WithField("component", "widget-bridge"),
		open:   make(map[string]*Attempt),
	}
}

// Ready лениво загружает скрипт и возвращает его статус. Ошибка загрузки
// навсегда оставляет bridge не готовым: повторная попытка требует нового
// процесса страницы, а не тихого продолжения без скрипта.
func (b *Bridge) Ready(ctx context.Context) error {
	b.loadOnce.Do(func() {
		if b.loader == nil {
			return
		}
		if err := b.loader(ctx); err != nil {
			b.logger.WithError(err).Error("widget script failed to load")
			b.loadErr = err
		}
	})
	if b.loadErr != nil {
		return ErrBridgeNotReady
	}
	return nil
}

// Open открывает виджет для сессии и возвращает попытку с одноразовым каналом
// исхода. Вторая попытка по той же сессии, пока первая не разрешилась,
// отклоняется — виджет не должен открываться дважды.
func (b *Bridge) Open(ctx context.Context, session domain.PaymentSession) (*Attempt, error) {
	if err := b.Ready(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.open[session.GatewayOrderID]; exists {
		return nil, ErrAttemptResolved
	}

	attempt := &Attempt{
		session: session,
		bridge:  b,
		result:  make(chan Outcome, 1),
	}
	b.open[session.GatewayOrderID] = attempt

	// Отмена контекста страницы равносильна закрытию виджета.
	go func() {
		select {
		case <-ctx.Done():
			attempt.Dismiss()
		case <-attempt.resolved():
		}
	}()

	return attempt, nil
}

func (b *Bridge) release(gatewayOrderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.open, gatewayOrderID)
}

// Attempt — одна открытая сессия виджета. Callbacks шлюза — fire-once:
// первый зафиксированный исход закрывает канал результата, остальные
// отбрасываются.
type Attempt struct {
	session domain.PaymentSession
	bridge  *Bridge

	once   sync.Once
	done   chan struct{}
	doneMu sync.Mutex
	result chan Outcome
}

// Session возвращает сессию, для которой открыт виджет.
func (a *Attempt) Session() domain.PaymentSession {
	return a.session
}

// Result возвращает одноразовый канал исхода попытки.
func (a *Attempt) Result() <-chan Outcome {
	return a.result
}

// Succeed фиксирует success-callback шлюза. Возвращает false, если исход по
// этой сессии уже был зафиксирован.
func (a *Attempt) Succeed(paymentID, signature string) bool {
	return a.resolve(Outcome{
		Kind:           OutcomeSucceeded,
		PaymentID:      paymentID,
		GatewayOrderID: a.session.GatewayOrderID,
		Signature:      signature,
	})
}

// Fail фиксирует сообщение шлюза о неуспешной оплате.
func (a *Attempt) Fail(reason string) bool {
	return a.resolve(Outcome{
		Kind:           OutcomeGatewayFailed,
		GatewayOrderID: a.session.GatewayOrderID,
		Reason:         reason,
	})
}

// Dismiss фиксирует закрытие виджета пользователем.
func (a *Attempt) Dismiss() bool {
	return a.resolve(Outcome{
		Kind:           OutcomeDismissed,
		GatewayOrderID: a.session.GatewayOrderID,
	})
}

func (a *Attempt) resolve(outcome Outcome) bool {
	fired := false
	a.once.Do(func() {
		fired = true
		a.result <- outcome
		close(a.result)
		close(a.resolved())
		a.bridge.release(a.session.GatewayOrderID)
	})
	return fired
}

func (a *Attempt) resolved() chan struct{} {
	a.doneMu.Lock()
	defer a.doneMu.Unlock()
	if a.done == nil {
		a.done = make(chan struct{})
	}
	return a.done
}
