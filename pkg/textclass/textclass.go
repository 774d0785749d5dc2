// Package textclass decides whether a file looks like a text log.
package textclass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/modoterra/ptail/pkg/core"
)

// SniffLen is the number of leading bytes examined.
const SniffLen = 512

// Sniff classifies a file from its leading bytes.
func Sniff(head []byte) core.FileKind {
	if len(head) == 0 {
		return core.KindEmpty
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return core.KindBinary
	}
	if strings.HasPrefix(http.DetectContentType(head), "text/") {
		return core.KindText
	}
	return core.KindBinary
}

// FileClassifier reads the head of the file directly.
type FileClassifier struct{}

func (FileClassifier) Classify(_ context.Context, path string) (core.FileKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, SniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return Sniff(buf[:n]), nil
}

// Cache memoizes verdicts by file identity. Empty files are never cached since
// they usually become text once the first line is written.
type Cache struct {
	classifier core.Classifier
	verdicts   map[core.FileIdentity]core.FileKind
	mu         sync.Mutex
}

// NewCache wraps a classifier.
func NewCache(c core.Classifier) *Cache {
	return &Cache{classifier: c, verdicts: make(map[core.FileIdentity]core.FileKind)}
}

// IsText reports whether the open file qualifies as text.
func (c *Cache) IsText(ctx context.Context, path string, id core.FileIdentity) (bool, error) {
	c.mu.Lock()
	kind, ok := c.verdicts[id]
	c.mu.Unlock()
	if ok {
		return kind == core.KindText, nil
	}

	kind, err := c.classifier.Classify(ctx, path)
	if err != nil {
		return false, err
	}
	if kind != core.KindEmpty {
		c.mu.Lock()
		c.verdicts[id] = kind
		c.mu.Unlock()
	}
	return kind == core.KindText, nil
}

// Retain drops verdicts for identities not in keep.
func (c *Cache) Retain(keep map[core.FileIdentity]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.verdicts {
		if !keep[id] {
			delete(c.verdicts, id)
		}
	}
}

// Len returns the number of cached verdicts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.verdicts)
}
