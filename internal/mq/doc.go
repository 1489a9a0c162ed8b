// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - node.execute   — выполнить node (очередь <host>_<image>)
//   - process.kill   — убить процесс (очередь <host>_<image>_supervisor)
//   - path.remove    — удалить файл или каталог (очередь supervisor'а)
//   - node.finished  — node завершился (очередь nodes.finished)
//
// Exchanges:
//   - conveyor.nodes   — команды машинам, routing key = имя очереди
//   - conveyor.events  — события node
//   - conveyor.dlq     — dead letter queue
package mq
