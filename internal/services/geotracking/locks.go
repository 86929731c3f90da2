package geotracking

import "sync"

// sessionLocks сериализует обработку сэмплов одной сессии: два почти
// одновременных репорта с одного устройства не должны наперегонки читать
// "предыдущий сэмпл" и состояние геозон. Запись живёт, пока сессия активна:
// закрывая сессию, вызывающий обязан освободить её через forget, иначе map
// растёт на долгоживущем процессе.
type sessionLocks struct {
	mu sync.Mutex
	m  map[uint64]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{m: make(map[uint64]*sync.Mutex)}
}

func (l *sessionLocks) lock(sessionID uint64) func() {
	l.mu.Lock()
	sm, ok := l.m[sessionID]
	if !ok {
		sm = &sync.Mutex{}
		l.m[sessionID] = sm
	}
	l.mu.Unlock()

	sm.Lock()
	return sm.Unlock
}

// forget выбрасывает мьютекс закрытой сессии. Опоздавший сэмпл по закрытой
// сессии создаст свежую запись, но UpdatePosition ищет только активные сессии,
// так что дальше блокировки дело не пойдёт.
func (l *sessionLocks) forget(sessionID uint64) {
	l.mu.Lock()
	delete(l.m, sessionID)
	l.mu.Unlock()
}
