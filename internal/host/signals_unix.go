//go:build unix

package host

import (
	"os"
	"syscall"
)

// TerminateSignals — штатная остановка (флаг завершения).
var TerminateSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// WakeSignals — ручное пробуждение (латч).
var WakeSignals = []os.Signal{syscall.SIGUSR1}

// HostShutdownSignals — хост завершается, выход без очистки.
var HostShutdownSignals = []os.Signal{syscall.SIGQUIT}
