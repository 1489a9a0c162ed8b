// Package scheduler запускает периодические циклы процесса.
//
// Структура:
//   - scheduler.go — Scheduler: циклы с интервалом (robfig/cron, @every)
//     и непрерывные циклы в отдельных горутинах
//   - cron.go      — разбор расписаний и адаптер логгера cron
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{Clock: clock.New(), Logger: logger})
//	_ = sched.Every("reaper", 10*time.Second, reaper.Run)
//	sched.Continuous("sampler", time.Second, sampler.Run)
//
//	sched.Start(ctx)
//	defer sched.Stop(context.Background())
package scheduler
