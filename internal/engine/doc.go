// Package engine разбирает описание pipeline и строит граф зависимостей.
//
// Включает:
//   - parser.go — разбор YAML описания (info, executors, interfaces, pipes)
//   - dag.go    — построение DAG executors и топологический порядок
//
// Engine ничего не пишет в БД: он только отвечает на вопрос,
// в каком порядке создавать node и какие между ними рёбра.
package engine
