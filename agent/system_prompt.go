package agent

import (
	"os"
	"sync"
	"time"
)

// systemPromptCache caches the rendered system prompt, invalidating the
// cache when the source file's modification time changes.
type systemPromptCache struct {
	mutex    sync.Mutex
	path     string
	modTime  time.Time
	rendered string
}

func newSystemPromptCache() *systemPromptCache {
	return &systemPromptCache{}
}

func (c *systemPromptCache) load(path string) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if path == c.path && info.ModTime().Equal(c.modTime) {
		return c.rendered, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	c.path = path
	c.modTime = info.ModTime()
	c.rendered = string(data)
	return c.rendered, nil
}
