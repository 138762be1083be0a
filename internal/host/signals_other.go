//go:build !unix

package host

import "os"

// TerminateSignals — штатная остановка (флаг завершения).
var TerminateSignals = []os.Signal{os.Interrupt}

// WakeSignals пуст: нет аналога SIGUSR1.
var WakeSignals []os.Signal

// HostShutdownSignals пуст: нет аналога SIGQUIT.
var HostShutdownSignals []os.Signal
