// email_handler.go
package email

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"DealPropension/src/datasource/file"
	"DealPropension/src/storage"
)

// XLSXAttachmentHandler writes the workbook attached to a matching mail over the data path.
type XLSXAttachmentHandler struct {
	TargetSubject string
	DataPath      string
	SheetName     string
	// Options are the loader stages an attachment must pass before it replaces DataPath.
	Options       file.Options
	processedUIDs map[uint32]bool
	mu            sync.RWMutex
}

func NewXLSXAttachmentHandler(subject, dataPath, sheetName string, opts file.Options) *XLSXAttachmentHandler {
	return &XLSXAttachmentHandler{
		TargetSubject: subject,
		DataPath:      dataPath,
		SheetName:     sheetName,
		Options:       opts,
		processedUIDs: make(map[uint32]bool),
	}
}

func (h *XLSXAttachmentHandler) isProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

func (h *XLSXAttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Handle stores the workbook of e at DataPath. It reports whether a new workbook was written.
// The attachment is loaded with Options first and a workbook the loader rejects never
// replaces the current one.
func (h *XLSXAttachmentHandler) Handle(e *Email, logger *storage.Logger) (bool, error) {
	if e == nil || h.isProcessed(e.UID) {
		return false, nil
	}

	if !strings.Contains(e.Subject, h.TargetSubject) {
		logger.Debug(fmt.Sprintf("skip mail %q: subject does not match", e.Subject))
		return false, nil
	}

	wb := e.Workbook()
	if wb == nil {
		return false, nil
	}

	if _, err := file.LoadBytes(wb.Content, h.SheetName, h.Options); err != nil {
		h.markAsProcessed(e.UID)
		return false, fmt.Errorf("attachment %s of mail %d: %w", wb.Filename, e.UID, err)
	}

	if err := os.MkdirAll(filepath.Dir(h.DataPath), 0755); err != nil {
		return false, fmt.Errorf("create data dir: %w", err)
	}

	tmp := h.DataPath + ".part"
	if err := os.WriteFile(tmp, wb.Content, 0644); err != nil {
		return false, fmt.Errorf("write attachment: %w", err)
	}
	if err := os.Rename(tmp, h.DataPath); err != nil {
		return false, fmt.Errorf("replace workbook: %w", err)
	}

	h.markAsProcessed(e.UID)
	logger.Info(fmt.Sprintf("saved %s from mail %d to %s", wb.Filename, e.UID, h.DataPath))
	return true, nil
}
