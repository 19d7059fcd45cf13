// Пакет blobclient — HTTP-клиент хранилища документов (blob store).
// Используется для чтения метаданных документа: даты создания, изменения,
// последнего доступа и категории. Поддерживает TLS с кастомным CA.
package blobclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ErrDocumentNotFound — документ отсутствует в хранилище.
var ErrDocumentNotFound = errors.New("документ не найден в хранилище")

// TokenProvider — функция, возвращающая токен для авторизации запросов.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken возвращает TokenProvider с фиксированным токеном.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// DocumentMetadata — метаданные документа (ответ GET /api/v1/documents/{id}).
type DocumentMetadata struct {
	ID             string     `json:"id"`
	Category       string     `json:"category"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	ModifiedAt     *time.Time `json:"modified_at,omitempty"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// Client — HTTP-клиент хранилища документов.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider
	logger        *slog.Logger
}

// New создаёт клиент хранилища документов.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// tokenProvider может быть nil, если хранилище не требует авторизации.
func New(baseURL string, timeout time.Duration, caCertPath string, tokenProvider TokenProvider, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата blob store: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат blob store добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		baseURL:       normalizeURL(baseURL),
		httpClient:    httpClient,
		tokenProvider: tokenProvider,
		logger:        logger.With(slog.String("component", "blob_client")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// BaseURL возвращает базовый URL хранилища (для dephealth).
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetDocument запрашивает метаданные документа.
// GET /api/v1/documents/{id}. 404 → ErrDocumentNotFound.
func (c *Client) GetDocument(ctx context.Context, documentID string) (*DocumentMetadata, error) {
	reqURL := c.baseURL + "/api/v1/documents/" + url.PathEscape(documentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса GetDocument: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.tokenProvider != nil {
		token, err := c.tokenProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("получение токена для blob store: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос GetDocument %s: %w", documentID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("blob store вернул статус %d для %s: %s", resp.StatusCode, documentID, string(body))
	}

	var meta DocumentMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("декодирование метаданных %s: %w", documentID, err)
	}
	if meta.ID == "" {
		meta.ID = documentID
	}

	c.logger.Debug("Метаданные документа получены",
		slog.String("document_id", documentID),
		slog.String("category", meta.Category),
	)
	return &meta, nil
}

// CheckReady проверяет доступность blob store через GET /health/live.
// Возвращает статус ("ok", "fail") и сообщение.
func (c *Client) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/live", http.NoBody)
	if err != nil {
		return "fail", "ошибка создания запроса: " + err.Error()
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "fail", fmt.Sprintf("blob store недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "fail", fmt.Sprintf("blob store вернул статус %d", resp.StatusCode)
	}
	return "ok", "blob store доступен"
}

// normalizeURL убирает trailing slash из URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}
