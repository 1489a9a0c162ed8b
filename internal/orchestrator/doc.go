// Package orchestrator отправляет node графов на машины флота.
//
// Orchestrator не хранит состояние графов: каждый проход читает node
// и рёбра из БД, строит GraphState и записывает решения обратно.
// Проход запускается polling'ом и событием node.finished.
//
// За один проход по графу:
//
//   - NotRan node, у которых зависимость завершилась не Success, становятся Skipped
//   - NotRan node, у которых все зависимости Success, получают контейнер
//     (машина из info.computer или любая онлайн-машина с образом графа)
//     и уходят в очередь <machine>_<image>
//
// Stop, StopGraph, RemoveNode и RemoveGraph — операции пользователя:
// завершение процесса и удаление рабочих пространств выполняют
// supervisor'ы машин по командам из их очередей.
package orchestrator
