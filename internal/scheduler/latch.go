package scheduler

// Latch — флаг пробуждения цикла.
//
// Set можно вызывать из любой горутины сколько угодно раз: пока цикл
// не проснулся, повторные Set схлопываются в одно пробуждение.
type Latch struct {
	ch chan struct{}
}

// NewLatch создаёт сброшенный Latch.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{}, 1)}
}

// Set устанавливает latch.
func (l *Latch) Set() {
	select {
	case l.ch <- struct{}{}:
	default:
	}
}

// Reset сбрасывает latch.
func (l *Latch) Reset() {
	select {
	case <-l.ch:
	default:
	}
}

// IsSet сообщает, установлен ли latch. Не сбрасывает его.
func (l *Latch) IsSet() bool {
	return len(l.ch) > 0
}

// C возвращает канал, из которого приходит пробуждение.
// Чтение из канала сбрасывает latch.
func (l *Latch) C() <-chan struct{} {
	return l.ch
}
