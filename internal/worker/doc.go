// Package worker выполняет node графов на машине флота.
//
// # Обзор
//
// Worker потребляет node.execute из двух очередей:
//
//   - общей очереди образа <host>_<image>, куда node отправляет orchestrator
//   - личной очереди <host>_<image>_<index>, куда воркер сам возвращает node
//     после неудачной установки библиотек
//
// Один Worker выполняет один node за раз. На машине обычно запущено
// несколько воркеров с разными номерами.
//
// # Выполнение node
//
//  1. Node в финальном статусе пропускается (сообщение подтверждается)
//  2. Node переводится в InProgress с машиной, образом и pid воркера
//  3. Рабочее пространство материализуется в TaskFolder/<node-id>;
//     debug node выполняется из каталога воркера
//  4. model_add выполняется внутри воркера, остальные executors —
//     отдельным процессом через Launcher
//  5. Пока процесс работает, last_activity обновляется с периодом Heartbeat
//  6. Финальный статус ставится по свежей копии node: node, остановленный
//     пользователем или supervisor'ом, не перезаписывается
//  7. Публикуется node.finished
//
// # Использование
//
//	w := worker.New(worker.Config{
//	    Settings:   cfg,
//	    Index:      0,
//	    Nodes:      repo.NewNodeRepo(pool),
//	    Workspaces: materializer,
//	    Models:     repo.NewModelRepo(pool),
//	    Events:     publisher,
//	    Conn:       conn,
//	    Logger:     logger,
//	})
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
//	defer w.Stop()
package worker
