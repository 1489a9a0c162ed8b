// Package graph превращает описание pipeline в сохранённый граф.
//
// Builder создаёт запись графа, снимок файлов проекта, node в
// топологическом порядке и рёбра зависимостей. Для обучающих node графа
// с отчётом создаются персональные отчёты.
//
// Кроме обычных графов Builder создаёт pipe-графы (интерфейсы моделей)
// и синтезирует описания для подключения и запуска моделей.
package graph
