// Package supervisor — health supervisor машины флота.
//
// Supervisor при старте регистрирует машину и контейнер в реестре
// флота, затем запускает независимые циклы:
//   - reaper.go  — node без живого процесса переводятся в Failed
//     (с окном grace после последней активности)
//   - sampler.go — утилизация машины, heartbeat контейнера и
//     агрегированные замеры
//   - sync.go    — внешняя синхронизация файлов
//
// Каждый цикл обёрнут в Boundary (boundary.go): своя сессия хранилища,
// логирование ошибок с компонентом и машиной, пересоздание сессии после
// ошибки соединения. Ни одна ошибка итерации не завершает процесс.
//
// commands.go обрабатывает очередь supervisor'а: kill и remove.
package supervisor
