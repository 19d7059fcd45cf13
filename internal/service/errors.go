// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
	"strings"
)

// Виды ошибок. Проверяются через errors.Is.
var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrInvalidTransition — нарушено правило жизненного цикла.
	ErrInvalidTransition = errors.New("недопустимый переход состояния")
	// ErrBlockedByLegalHold — документ под юридическим удержанием.
	ErrBlockedByLegalHold = errors.New("документ под юридическим удержанием")
	// ErrConcurrencyConflict — параллельное изменение не удалось разрешить повторами.
	ErrConcurrencyConflict = errors.New("конфликт параллельного изменения")
	// ErrAuditWriteFailed — запись журнала не удалась и поставлена в очередь повтора.
	ErrAuditWriteFailed = errors.New("ошибка записи журнала disposition")
	// ErrPolicyInUse — на политику ссылаются статусы документов.
	ErrPolicyInUse = errors.New("политика используется документами")
	// ErrBlobStoreUnavailable — хранилище документов недоступно.
	ErrBlobStoreUnavailable = errors.New("хранилище документов недоступно")
)

// Конкретные ошибки, оборачивающие вид.
var (
	ErrPolicyNotFound   = fmt.Errorf("%w: политика", ErrNotFound)
	ErrTemplateNotFound = fmt.Errorf("%w: шаблон политики", ErrNotFound)
	ErrHoldNotFound     = fmt.Errorf("%w: юридическое удержание", ErrNotFound)
	ErrStatusNotFound   = fmt.Errorf("%w: статус хранения документа", ErrNotFound)
	ErrDocumentNotFound = fmt.Errorf("%w: документ", ErrNotFound)
	ErrAlreadyDisposed  = fmt.Errorf("%w: документ уже уничтожен", ErrInvalidTransition)
	ErrApprovalRequired = fmt.Errorf("%w: требуется подтверждение оператора", ErrInvalidTransition)
	ErrInvalidRelease   = fmt.Errorf("%w: причина снятия удержания обязательна", ErrValidation)
	ErrHoldReleased     = fmt.Errorf("%w: удержание уже снято", ErrInvalidTransition)
)

// OperationError — ошибка операции движка с идентификаторами затронутых сущностей.
type OperationError struct {
	// Op — операция (например, "ExecuteDisposition")
	Op         string
	DocumentID string
	PolicyID   string
	HoldID     string
	Err        error
}

// Error реализует интерфейс error.
func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.DocumentID != "" {
		fmt.Fprintf(&b, " document=%s", e.DocumentID)
	}
	if e.PolicyID != "" {
		fmt.Fprintf(&b, " policy=%s", e.PolicyID)
	}
	if e.HoldID != "" {
		fmt.Fprintf(&b, " hold=%s", e.HoldID)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

// Unwrap возвращает исходную ошибку.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// opError оборачивает err в OperationError. nil остаётся nil,
// уже обёрнутая ошибка дополняется недостающими идентификаторами.
func opError(op string, err error, ids ...opID) error {
	if err == nil {
		return nil
	}
	var oe *OperationError
	if errors.As(err, &oe) {
		for _, id := range ids {
			id(oe)
		}
		return err
	}
	oe = &OperationError{Op: op, Err: err}
	for _, id := range ids {
		id(oe)
	}
	return oe
}

// opID — опция заполнения идентификатора OperationError.
type opID func(*OperationError)

func withDocument(id string) opID {
	return func(e *OperationError) {
		if e.DocumentID == "" {
			e.DocumentID = id
		}
	}
}

func withPolicy(id string) opID {
	return func(e *OperationError) {
		if e.PolicyID == "" {
			e.PolicyID = id
		}
	}
}

func withHold(id string) opID {
	return func(e *OperationError) {
		if e.HoldID == "" {
			e.HoldID = id
		}
	}
}

// validationError создаёт ошибку валидации с сообщением.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
