// bulk.go — пакетная обработка документов с ограниченным параллелизмом.
package service

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DocumentResult — результат обработки документа в пакетной операции.
type DocumentResult struct {
	DocumentID string
	MutationResult
	Err error
}

// BulkResult — результаты пакетной операции в порядке входных идентификаторов.
type BulkResult struct {
	Results   []DocumentResult
	Succeeded int
	Failed    int
}

// AuditEntryIDs возвращает все записи журнала, созданные пакетной операцией.
func (r *BulkResult) AuditEntryIDs() []string {
	var ids []string
	for _, res := range r.Results {
		ids = append(ids, res.AuditEntryIDs...)
	}
	return ids
}

// uniqueDocumentIDs нормализует список документов: пробелы обрезаются,
// дубликаты удаляются с сохранением порядка.
func uniqueDocumentIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, validationError("список документов пуст")
	}
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, validationError("пустой идентификатор документа")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result, nil
}

// forEachDocument выполняет fn для каждого документа, не более concurrency
// одновременно. Ошибка одного документа не прерывает остальные; отмена ctx
// завершает ещё не начатые документы с ошибкой контекста.
func forEachDocument(ctx context.Context, ids []string, concurrency int, fn func(ctx context.Context, documentID string) (MutationResult, error)) *BulkResult {
	results := make([]DocumentResult, len(ids))

	g, gCtx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, id := range ids {
		g.Go(func() error {
			results[i].DocumentID = id
			if err := gCtx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].MutationResult, results[i].Err = fn(gCtx, id)
			return nil
		})
	}
	_ = g.Wait()

	br := &BulkResult{Results: results}
	for _, r := range results {
		if r.Err != nil {
			br.Failed++
		} else {
			br.Succeeded++
		}
	}
	return br
}
