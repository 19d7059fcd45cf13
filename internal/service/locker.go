// locker.go — сериализация изменений статуса по документу внутри процесса.
package service

import "sync"

// DocumentLocker — мьютекс с ключом document_id.
// Записи удаляются, когда последний владелец освобождает блокировку.
type DocumentLocker struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

// NewDocumentLocker создаёт пустой DocumentLocker.
func NewDocumentLocker() *DocumentLocker {
	return &DocumentLocker{locks: make(map[string]*docLock)}
}

// Lock захватывает блокировку документа и возвращает функцию освобождения.
func (l *DocumentLocker) Lock(documentID string) (unlock func()) {
	l.mu.Lock()
	dl, ok := l.locks[documentID]
	if !ok {
		dl = &docLock{}
		l.locks[documentID] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.mu.Lock()

	return func() {
		dl.mu.Unlock()

		l.mu.Lock()
		dl.refs--
		if dl.refs == 0 {
			delete(l.locks, documentID)
		}
		l.mu.Unlock()
	}
}

// Len возвращает количество документов с активными блокировками.
func (l *DocumentLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
