package domain

import "time"

// Job — строка таблицы заданий.
//
// Таблица принадлежит внешнему хранилищу: воркер не создаёт и не удаляет
// задания и не меняет enabled/next_run. Перепланирование (сдвиг next_run)
// целиком делает функция выполнения задания.
type Job struct {
	// ID — идентификатор задания (колонка job_id).
	ID int64 `json:"job_id"`

	// Enabled — выключенные задания никогда не выбираются.
	Enabled bool `json:"enabled"`

	// NextRun — время следующего запуска.
	// Задание считается due, когда next_run <= now().
	NextRun time.Time `json:"next_run"`
}

// IsDue проверяет, пора ли запускать задание.
func (j *Job) IsDue(now time.Time) bool {
	if !j.Enabled {
		return false
	}
	return !j.NextRun.After(now)
}

// DueJob — задание, выбранное в текущем цикле.
type DueJob struct {
	ID      int64     `json:"job_id"`
	NextRun time.Time `json:"next_run"`
}

// IDs возвращает идентификаторы в исходном порядке.
func IDs(jobs []DueJob) []int64 {
	ids := make([]int64, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}
