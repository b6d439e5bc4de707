package storage

import (
	"context"
	"log"
	"time"
)

// Upload — содержимое файла, которое нужно положить во внешнее хранилище.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// CompensationAuditor получает уведомление о проваленной компенсации
// (например, для отправки события в Kafka).
type CompensationAuditor interface {
	CompensationFailed(fileURL, reason string)
}

// Coordinator оборачивает Save/Delete хранилища в порядок и компенсации.
// Ключевой инвариант: закоммиченная запись никогда не ссылается на объект,
// которого нет в хранилище. Обратное — объект без записи — допустимая
// утечка; такие объекты попадают в реестр orphans.
type Coordinator struct {
	storage ObjectStorage
	orphans OrphanRegistry // может быть nil
	auditor CompensationAuditor
	logger  *log.Logger
}

func NewCoordinator(storage ObjectStorage, orphans OrphanRegistry, auditor CompensationAuditor, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		storage: storage,
		orphans: orphans,
		auditor: auditor,
		logger:  logger,
	}
}

// StoreWithRecord: сначала файл, потом запись. Если persist падает,
// только что загруженный объект удаляется (best effort).
func (c *Coordinator) StoreWithRecord(ctx context.Context, up Upload, persist func(fileURL string) error) (string, error) {
	fileURL, err := c.storage.Save(ctx, up.Filename, up.ContentType, up.Data)
	if err != nil {
		return "", err
	}

	if err := persist(fileURL); err != nil {
		c.discard(fileURL, "rollback after failed insert")
		return "", err
	}

	return fileURL, nil
}

// ReplaceWithRecord: новый файл, затем запись, и только после коммита —
// удаление старого объекта. При откате старый объект и ссылка не трогаются.
func (c *Coordinator) ReplaceWithRecord(ctx context.Context, oldFileURL string, up Upload, persist func(fileURL string) error) (string, error) {
	newFileURL, err := c.storage.Save(ctx, up.Filename, up.ContentType, up.Data)
	if err != nil {
		return "", err
	}

	if err := persist(newFileURL); err != nil {
		c.discard(newFileURL, "rollback after failed update")
		return "", err
	}

	if oldFileURL != "" {
		c.discard(oldFileURL, "replaced attachment cleanup")
	}

	return newFileURL, nil
}

// DeleteAfterRecord: сначала запись, потом best-effort удаление файла.
// Ошибка удаления файла не всплывает наружу.
func (c *Coordinator) DeleteAfterRecord(ctx context.Context, fileURL string, remove func() error) error {
	if err := remove(); err != nil {
		return err
	}

	if fileURL != "" {
		c.discard(fileURL, "deleted record cleanup")
	}

	return nil
}

// discard удаляет объект best effort. Неудача логируется и фиксируется в
// реестре orphans; восстановление не гарантируется.
func (c *Coordinator) discard(fileURL, reason string) {
	// отдельный контекст: компенсация не должна зависеть от отменённого запроса
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := c.storage.Delete(ctx, fileURL)
	if err == nil {
		return
	}

	c.logger.Printf("compensation failed (%s) for %s: %v", reason, fileURL, err)
	if c.orphans != nil {
		if regErr := c.orphans.Record(ctx, fileURL, reason+": "+err.Error()); regErr != nil {
			c.logger.Printf("orphan registry write failed for %s: %v", fileURL, regErr)
		}
	}
	if c.auditor != nil {
		c.auditor.CompensationFailed(fileURL, reason)
	}
}
