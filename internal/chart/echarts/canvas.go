package echarts

import "sync"

// Canvas is a fixed-size chart container. SetSize notifies resize observers.
type Canvas struct {
	mu        sync.Mutex
	width     int
	viewport  int
	nextID    int
	observers map[int]func()
}

// NewCanvas returns a canvas of the given content width and viewport height.
func NewCanvas(width, viewportHeight int) *Canvas {
	return &Canvas{width: width, viewport: viewportHeight, observers: make(map[int]func())}
}

func (c *Canvas) ContentWidth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width
}

func (c *Canvas) ViewportHeight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

func (c *Canvas) ObserveResize(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// SetSize changes the canvas size and calls every observer when it differs
// from the current one.
func (c *Canvas) SetSize(width, viewportHeight int) {
	c.mu.Lock()
	if c.width == width && c.viewport == viewportHeight {
		c.mu.Unlock()
		return
	}
	c.width, c.viewport = width, viewportHeight
	fns := make([]func(), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
