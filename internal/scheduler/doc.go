// Package scheduler реализует цикл воркера, который забирает due задания
// из таблицы и передаёт их на выполнение.
//
// Один цикл:
//
//  1. ждём latch (внешнее пробуждение), таймер WakeInterval или
//     уведомление о гибели хоста;
//  2. открываем транзакцию и выбираем due задания
//     (enabled AND next_run <= now() ORDER BY next_run FOR UPDATE SKIP LOCKED);
//  3. вызываем Executor для каждого id по порядку;
//  4. коммитим (или откатываем весь цикл при первой ошибке);
//  5. если заданий не было — дополнительно спим WakeInterval.
//
// Структура:
//   - scheduler.go — Scheduler (Run, RunCycle, Terminate)
//   - store.go     — интерфейсы Store, Tx, Executor
//   - latch.go     — Latch, примитив пробуждения
//   - state.go     — State и WakeReason
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Store:        jobRepo,
//	    Executor:     repo.NewProcExecutor(""),
//	    Latch:        latch,
//	    HostShutdown: watcher.Done(),
//	    Interval:     interval.ParseOrDefault(logger, cfg.WakeInterval),
//	    Logger:       logger,
//	})
//
//	if err := sched.Run(ctx); err != nil {
//	    os.Exit(host.ExitCode(err))
//	}
//
// Взаимное исключение между экземплярами обеспечивает хранилище
// (блокировки строк), а не сам Scheduler. Сдвиг next_run — забота Executor.
package scheduler
