// Package cli реализует инструмент командной строки Conveyor.
//
// # Обзор
//
// CLI работает напрямую с БД и брокером: создаёт графы через Graph
// Builder, отправляет node воркерам, останавливает и удаляет node
// через Orchestrator.
//
// # Ключевые компоненты
//
// ## Env
//
// Ресурсы команды. Сессия БД и соединение с брокером открываются
// лениво, только если команде они нужны, и закрываются через Close.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения и логи — в stderr.
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - dag: start, pipe, stop, remove
//   - model: add, start
//   - node: stop, remove
//   - dispatch, project add, migrate
//
// Каждая группа создаётся фабричной функцией (NewDagCmd и т.д.),
// принимающей envFn и outputFn — замыкания, которые создают Env и
// Output после разбора флагов.
package cli
