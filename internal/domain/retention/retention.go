// Пакет retention — правила жизненного цикла статуса хранения документа.
//
// Штатный поток:
//
//	active → pending_review | pending_approval | archived | disposed
//	pending_review → pending_approval | archived | disposed | pending_review
//	pending_approval → archived | disposed | pending_review
//	archived → pending_approval | disposed
//	disposed — конечное состояние
//
// Состояние on_hold выставляется и снимается только через ApplyHold и
// ReleaseHold: это единственное место, где меняется набор удержаний,
// поэтому инвариант «on_hold ⇔ есть удержания» держится здесь.
package retention

import (
	"crypto/rand"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
)

// Коды ошибок переходов.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeHeld              = "BLOCKED_BY_LEGAL_HOLD"
	CodeInvalidState      = "INVALID_STATE"
)

// TransitionError — ошибка перехода между состояниями.
type TransitionError struct {
	Code    string
	From    model.RetentionState
	To      model.RetentionState
	Message string
}

// Error реализует интерфейс error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// validTransitions — матрица допустимых переходов штатного потока.
// on_hold сюда не входит: удержания управляются ApplyHold/ReleaseHold.
var validTransitions = map[model.RetentionState]map[model.RetentionState]bool{
	model.StateActive: {
		model.StatePendingReview:   true,
		model.StatePendingApproval: true,
		model.StateArchived:        true,
		model.StateDisposed:        true,
	},
	model.StatePendingReview: {
		model.StatePendingReview:   true,
		model.StatePendingApproval: true,
		model.StateArchived:        true,
		model.StateDisposed:        true,
	},
	model.StatePendingApproval: {
		model.StatePendingReview: true,
		model.StateArchived:      true,
		model.StateDisposed:      true,
	},
	model.StateArchived: {
		model.StatePendingApproval: true,
		model.StateDisposed:        true,
	},
	model.StateDisposed: {},
	model.StateOnHold:   {},
}

// ParseState разбирает строковое представление состояния.
func ParseState(s string) (model.RetentionState, error) {
	st := model.RetentionState(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", &TransitionError{
			Code:    CodeInvalidState,
			Message: fmt.Sprintf("недопустимое состояние: %q", s),
		}
	}
	return st, nil
}

// CanTransition проверяет допустимость перехода from → to.
func CanTransition(from, to model.RetentionState) bool {
	return validTransitions[from][to]
}

// Transition переводит статус в состояние to.
// Статус под удержанием не меняется: возвращается ошибка с кодом CodeHeld.
func Transition(st *model.DocumentRetentionStatus, to model.RetentionState) error {
	if st.IsHeld() || st.CurrentStatus == model.StateOnHold {
		return &TransitionError{
			Code:    CodeHeld,
			From:    st.CurrentStatus,
			To:      to,
			Message: fmt.Sprintf("документ %s находится под удержанием %v", st.DocumentID, st.LegalHoldIDs),
		}
	}
	if !CanTransition(st.CurrentStatus, to) {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			From:    st.CurrentStatus,
			To:      to,
			Message: fmt.Sprintf("переход %s → %s недопустим", st.CurrentStatus, to),
		}
	}
	st.CurrentStatus = to
	return nil
}

// ApplyHold добавляет удержание к статусу и переводит его в on_hold.
// Возвращает false, если удержание уже было наложено.
// При первом удержании запоминается исходное состояние.
func ApplyHold(st *model.DocumentRetentionStatus, holdID string) bool {
	if st.HasHold(holdID) {
		return false
	}
	if !st.IsHeld() && st.CurrentStatus != model.StateOnHold {
		prev := st.CurrentStatus
		st.PreHoldStatus = &prev
	}
	st.LegalHoldIDs = append(st.LegalHoldIDs, holdID)
	st.CurrentStatus = model.StateOnHold
	return true
}

// ReleaseHold снимает удержание со статуса. Когда удержаний не остаётся,
// состояние восстанавливается: archived и disposed возвращаются как были,
// иначе active при будущей дате окончания и pending_review при прошедшей.
// Возвращает false, если удержания на документе не было.
func ReleaseHold(st *model.DocumentRetentionStatus, holdID string, now time.Time) bool {
	idx := slices.Index(st.LegalHoldIDs, holdID)
	if idx < 0 {
		return false
	}
	st.LegalHoldIDs = slices.Delete(st.LegalHoldIDs, idx, idx+1)
	if st.IsHeld() {
		return true
	}

	switch {
	case st.PreHoldStatus != nil && st.PreHoldStatus.IsTerminal():
		st.CurrentStatus = *st.PreHoldStatus
	case st.RetentionEndDate.After(now):
		st.CurrentStatus = model.StateActive
	default:
		st.CurrentStatus = model.StatePendingReview
	}
	st.PreHoldStatus = nil
	return true
}

// EndDate вычисляет дату окончания срока хранения.
func EndDate(start time.Time, periodDays int) time.Time {
	return start.AddDate(0, 0, periodDays)
}

// InNotificationWindow проверяет, попадает ли активный документ
// в окно уведомления: срок ещё не истёк, но истечёт в течение daysBefore дней.
func InNotificationWindow(st *model.DocumentRetentionStatus, daysBefore int, now time.Time) bool {
	if st.CurrentStatus != model.StateActive || st.IsHeld() || daysBefore <= 0 {
		return false
	}
	if !st.RetentionEndDate.After(now) {
		return false
	}
	return !st.RetentionEndDate.After(now.AddDate(0, 0, daysBefore))
}

// certSuffixLen — длина случайной части номера сертификата.
const certSuffixLen = 8

// NewCertificateNumber генерирует номер сертификата уничтожения
// в формате DC-YYYYMMDD-XXXXXXXX. Случайная часть — base32 (A-Z, 2-7).
func NewCertificateNumber(now time.Time) string {
	return fmt.Sprintf("DC-%s-%s", now.UTC().Format("20060102"), rand.Text()[:certSuffixLen])
}
