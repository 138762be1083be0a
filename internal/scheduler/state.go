package scheduler

// State — состояние цикла.
//
//	RUNNING → STOPPING → STOPPED
//	        ↘ STOPPED (ошибка цикла или гибель хоста)
type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// WakeReason — почему закончилось ожидание.
type WakeReason int

const (
	// WakeLatch — кто-то установил latch.
	WakeLatch WakeReason = iota
	// WakeTimeout — истёк WakeInterval.
	WakeTimeout
	// WakeHostShutdown — хост завершается.
	WakeHostShutdown
	// WakeTerminate — запрошена штатная остановка.
	WakeTerminate
)

func (r WakeReason) String() string {
	switch r {
	case WakeLatch:
		return "latch"
	case WakeTimeout:
		return "timeout"
	case WakeHostShutdown:
		return "host_shutdown"
	case WakeTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}
