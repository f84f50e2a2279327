package clock

import "sync"

// Clock - монотонный логический счетчик устройства.
// Значение не сохраняется самостоятельно, его сохраняет движок синхронизации.
type Clock struct {
	mu      sync.Mutex
	counter int64
}

// New создает часы с начальным значением seed (0 - первый Next вернет 1)
func New(seed int64) *Clock {
	if seed < 0 {
		seed = 0
	}
	return &Clock{counter: seed}
}

// Next увеличивает счетчик и возвращает новое значение
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter++
	return c.counter
}

// Observe учитывает значение, полученное от другого устройства:
// counter = max(counter, received) + 1
func (c *Clock) Observe(received int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if received > c.counter {
		c.counter = received
	}
	c.counter++
	return c.counter
}

// Current возвращает текущее значение без изменения
func (c *Clock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counter
}
